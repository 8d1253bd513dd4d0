package rpc

import (
	"context"
	"strconv"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/Permutize/smart-accounts/batch"
	"github.com/Permutize/smart-accounts/cidutil"
	"github.com/Permutize/smart-accounts/engine"
)

// Server serves one account's engine.
type Server struct {
	UnimplementedAccountServer
	Engine *engine.Engine
}

func (s *Server) Submit(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	env, err := batch.DecodeEnvelope(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode envelope: %v", err)
	}
	rec, err := s.Engine.ExecuteSigned(env.Batch, env.Signature)
	if err != nil {
		return nil, engineStatus(err)
	}
	return recordStruct(rec)
}

func (s *Server) Simulate(ctx context.Context, in *wrapperspb.BytesValue) (*structpb.Struct, error) {
	env, err := batch.DecodeEnvelope(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode envelope: %v", err)
	}
	rec, err := s.Engine.SimulateBatch(engine.SimulationCaller, env.Batch, env.Signature)
	if err != nil {
		return nil, engineStatus(err)
	}
	return recordStruct(rec)
}

func (s *Server) Nonce(ctx context.Context, in *wrapperspb.StringValue) (*wrapperspb.UInt64Value, error) {
	principal, err := batch.HexToAddress(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "principal: %v", err)
	}
	return wrapperspb.UInt64(s.Engine.CurrentNonce(principal)), nil
}

func (s *Server) Digest(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	b, err := batch.Decode(in.GetValue())
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode batch: %v", err)
	}
	return wrapperspb.String(cidutil.DigestCID(s.Engine.BatchDigest(b))), nil
}

func recordStruct(rec engine.ExecutionRecord) (*structpb.Struct, error) {
	// The nonce travels as a decimal string: structpb numbers are float64
	// and would silently lose precision past 2^53.
	out, err := structpb.NewStruct(map[string]interface{}{
		"principal": rec.Principal.String(),
		"nonce":     strconv.FormatUint(rec.Nonce, 10),
		"digest":    cidutil.DigestCID(rec.Digest),
		"simulated": rec.Simulated,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode record: %v", err)
	}
	return out, nil
}

// engineStatus maps an engine rejection to a gRPC status, keeping the
// stable rule ID in the message so relayers can branch on cause.
func engineStatus(err error) error {
	code := codes.Unknown
	switch {
	case engine.IsKind(err, engine.KindStructural):
		code = codes.InvalidArgument
	case engine.IsKind(err, engine.KindTemporal):
		code = codes.DeadlineExceeded
	case engine.IsKind(err, engine.KindAuthorization):
		code = codes.PermissionDenied
		if ruleID := engine.RuleID(err); ruleID == "SA-AUTH-201" {
			// A stale nonce is retriable after re-signing.
			code = codes.FailedPrecondition
		}
	case engine.IsKind(err, engine.KindExecution), engine.IsKind(err, engine.KindTransfer):
		code = codes.Aborted
	case engine.IsKind(err, engine.KindModeGuard):
		code = codes.FailedPrecondition
	}
	if ruleID := engine.RuleID(err); ruleID != "" {
		return status.Errorf(code, "%s: %v", ruleID, err)
	}
	return status.Errorf(code, "%v", err)
}
