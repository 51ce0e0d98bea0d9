package transport

import (
	"time"

	"actorsub/internal/iface"
	"actorsub/pkg/lib"

	"google.golang.org/protobuf/types/known/timestamppb"
)

// pushTaskWireRequest is the msgpack body of a cmdPushActorTask request.
// sentAt is a proto-marshaled google.protobuf.Timestamp (the teacher's
// stack requires protobuf for exactly this kind of typed payload field;
// the rest of the envelope stays msgpack because the teacher never hands
// protobuf-shaped messages to its own wire codec) carried as raw bytes so
// the receiving side can compute queueing latency without trusting the
// sender's wall clock format.
type pushTaskWireRequest struct {
	TaskID           string
	ActorID          string
	SequenceNumber   uint64
	AttemptNumber    uint64
	IsActorCreation  bool
	CallerWorkerID   string
	Body             []byte
	IntendedWorkerID string
	SkipQueue        bool
	SentAt           []byte
}

type pushTaskWireReply struct {
	IsRetryableError   bool
	IsApplicationError bool
	TaskExecutionError string
	DeathCause         *wireDeathCause
}

type wireDeathCause struct {
	Kind            int32
	Message         string
	FailImmediately bool
	NodeDeathReason int32
}

type cancelWireRequest struct {
	TaskID         string
	ForceKill      bool
	Recursive      bool
	CallerWorkerID string
}

type cancelWireReply struct {
	AttemptSucceeded bool
}

func nowStamp() []byte {
	data, err := lib.PB.Marshal(timestamppb.New(time.Now()))
	if err != nil {
		return nil
	}
	return data
}

// sentLatency decodes a request's SentAt stamp and returns how long it has
// been in flight; a malformed or missing stamp reports zero rather than
// erroring, since latency accounting is diagnostic, not correctness-critical.
func sentLatency(stamp []byte) time.Duration {
	if len(stamp) == 0 {
		return 0
	}
	var ts timestamppb.Timestamp
	if err := lib.PB.Unmarshal(stamp, &ts); err != nil {
		return 0
	}
	return time.Since(ts.AsTime())
}

func toWireDeathCause(dc *iface.DeathCause) *wireDeathCause {
	if dc == nil {
		return nil
	}
	return &wireDeathCause{
		Kind:            int32(dc.Kind),
		Message:         dc.Message,
		FailImmediately: dc.FailImmediately,
		NodeDeathReason: int32(dc.NodeDeathReason),
	}
}

func fromWireDeathCause(dc *wireDeathCause) *iface.DeathCause {
	if dc == nil {
		return nil
	}
	return &iface.DeathCause{
		Kind:            iface.DeathCauseKind(dc.Kind),
		Message:         dc.Message,
		FailImmediately: dc.FailImmediately,
		NodeDeathReason: iface.NodeDeathReason(dc.NodeDeathReason),
	}
}

func marshalPush(req iface.PushActorTaskRequest) ([]byte, error) {
	w := pushTaskWireRequest{
		TaskID:           string(req.TaskSpec.TaskID()),
		ActorID:          string(req.TaskSpec.ActorID()),
		SequenceNumber:   req.SequenceNumber,
		AttemptNumber:    req.TaskSpec.AttemptNumber(),
		IsActorCreation:  req.TaskSpec.IsActorCreation(),
		CallerWorkerID:   req.TaskSpec.CallerWorkerID(),
		Body:             req.TaskSpec.Body(),
		IntendedWorkerID: req.IntendedWorkerID,
		SentAt:           nowStamp(),
	}
	return lib.MsgPack.Marshal(&w)
}

func marshalPushReply(reply iface.PushTaskReply) ([]byte, error) {
	w := pushTaskWireReply{
		IsRetryableError:   reply.IsRetryableError,
		IsApplicationError: reply.IsApplicationError,
		TaskExecutionError: reply.TaskExecutionError,
		DeathCause:         toWireDeathCause(reply.DeathCause),
	}
	return lib.MsgPack.Marshal(&w)
}

func unmarshalPushReply(data []byte) (iface.PushTaskReply, error) {
	var w pushTaskWireReply
	if err := lib.MsgPack.Unmarshal(data, &w); err != nil {
		return iface.PushTaskReply{}, err
	}
	return iface.PushTaskReply{
		IsRetryableError:   w.IsRetryableError,
		IsApplicationError: w.IsApplicationError,
		TaskExecutionError: w.TaskExecutionError,
		DeathCause:         fromWireDeathCause(w.DeathCause),
	}, nil
}

func marshalCancel(req iface.CancelTaskRequest) ([]byte, error) {
	w := cancelWireRequest{
		TaskID:         string(req.TaskID),
		ForceKill:      req.ForceKill,
		Recursive:      req.Recursive,
		CallerWorkerID: req.CallerWorkerID,
	}
	return lib.MsgPack.Marshal(&w)
}

func marshalCancelReply(reply iface.CancelTaskReply) ([]byte, error) {
	return lib.MsgPack.Marshal(&cancelWireReply{AttemptSucceeded: reply.AttemptSucceeded})
}

func unmarshalCancelReply(data []byte) (iface.CancelTaskReply, error) {
	var w cancelWireReply
	if err := lib.MsgPack.Unmarshal(data, &w); err != nil {
		return iface.CancelTaskReply{}, err
	}
	return iface.CancelTaskReply{AttemptSucceeded: w.AttemptSucceeded}, nil
}
