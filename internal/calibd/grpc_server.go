package calibd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/config"
	"github.com/GoSim-25-26J-441/contact-calibration/pkg/logger"
)

// CalibrationGRPCServer implements CalibrationServiceServer on a RunStore backend.
type CalibrationGRPCServer struct {
	store    *RunStore
	Executor *RunExecutor
}

func NewCalibrationGRPCServer(store *RunStore, executor *RunExecutor) *CalibrationGRPCServer {
	return &CalibrationGRPCServer{
		store:    store,
		Executor: executor,
	}
}

// StartCalibration creates a run from {run_id, config_yaml, callback_url, callback_secret}
// and starts it.
func (s *CalibrationGRPCServer) StartCalibration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	configYAML := stringField(req, "config_yaml")
	if configYAML == "" {
		return nil, status.Error(codes.InvalidArgument, "config_yaml is required")
	}
	cfg, err := config.ParseConfigYAMLString(configYAML)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cb := Callback{URL: stringField(req, "callback_url"), Secret: stringField(req, "callback_secret")}
	if cb.URL != "" {
		if err := validateCallbackURL(cb.URL); err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
	}

	rec, err := s.store.Create(stringField(req, "run_id"), cfg, configYAML, cb)
	if err != nil {
		switch {
		case errors.Is(err, ErrRunExists):
			return nil, status.Error(codes.AlreadyExists, err.Error())
		case errors.Is(err, ErrInvalidRunID):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		default:
			return nil, status.Error(codes.Internal, err.Error())
		}
	}

	started, err := s.Executor.Start(rec.Run.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	logger.Info("calibration started (gRPC)", "run_id", rec.Run.ID)
	return runResponse(started)
}

// GetCalibration returns {run, latest_progress} for {run_id}
func (s *CalibrationGRPCServer) GetCalibration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, ErrRunIDMissing.Error())
	}
	rec, ok := s.store.Get(runID)
	if !ok {
		return nil, status.Error(codes.NotFound, fmt.Sprintf("%v: %s", ErrRunNotFound, runID))
	}
	return runResponse(rec)
}

// StopCalibration cancels {run_id}
func (s *CalibrationGRPCServer) StopCalibration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	runID := stringField(req, "run_id")
	updated, err := s.Executor.Stop(runID)
	if err != nil {
		return nil, toStatus(err)
	}
	logger.Info("calibration cancelled (gRPC)", "run_id", runID)
	return runResponse(updated)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrRunIDMissing):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrRunNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// runResponse renders a record as {run, latest_progress} through its JSON form
func runResponse(rec *RunRecord) (*structpb.Struct, error) {
	resp := map[string]any{"run": rec.Run}
	if latest, ok := rec.Progress.Latest(); ok {
		resp["latest_progress"] = latest
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return structpb.NewStruct(m)
}
