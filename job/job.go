package job

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// DefaultQueue is the queue a Job lands on when none is specified, matching
// Sidekiq's own default.
const DefaultQueue = "default"

// jidNamespace is an arbitrary fixed namespace UUID used only to derive
// DeterministicJID values. It has no meaning beyond seeding uuid.NewSHA1.
var jidNamespace = uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

// DeterministicJID derives a stable job ID from name instead of generating
// a fresh random one. Any two callers passing the same name compute the
// same JID — which matters because Enqueue's lock key is content-addressed
// over the job's full encoded bytes (§4.4): a random per-replica JID on an
// otherwise identical scheduled job would make independently-bootstrapped
// replicas compute different lock keys for the same (schedule, firing)
// pair and both win the CAS.
func DeterministicJID(name string) string {
	return uuid.NewSHA1(jidNamespace, []byte(name)).String()
}

// ErrEncoding marks a job serialization failure. Per-schedule at enqueue
// time, this means skip that schedule for the current tick and log — it
// never aborts the tick itself.
var ErrEncoding = errors.New("job: encoding error")

// Job is the Sidekiq-compatible payload enqueued by the scheduler. Workers
// in the downstream ecosystem decode and execute it; the scheduler never
// does.
type Job struct {
	Class string `json:"class"`
	Queue string `json:"queue"`
	Args  []any  `json:"args,omitempty"`
	JID   string `json:"jid"`
}

// New constructs a Job for class, applying opts. Queue defaults to
// DefaultQueue; JID defaults to a generated UUID unless overridden with
// WithJID.
func New(class string, opts ...Option) *Job {
	j := &Job{
		Class: class,
		Queue: DefaultQueue,
		JID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Clone returns a copy of j with its own Args slice, so callers (e.g.
// schedule.GetJobs appending scheduled_at metadata) can append to or
// replace Args elements without aliasing the original. The elements
// themselves are not copied.
func (j *Job) Clone() *Job {
	args := make([]any, len(j.Args))
	copy(args, j.Args)
	return &Job{Class: j.Class, Queue: j.Queue, Args: args, JID: j.JID}
}

// Encode serializes the job to its wire JSON representation. A marshal
// failure (e.g. an Args element that isn't JSON-serializable) is wrapped
// so callers can distinguish it from a storage error.
func (j *Job) Encode() ([]byte, error) {
	b, err := json.Marshal(j)
	if err != nil {
		return nil, fmt.Errorf("job: encode %s: %w: %v", j.Class, ErrEncoding, err)
	}
	return b, nil
}

// Decode parses the wire JSON representation of a job.
func Decode(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("job: decode: %w: %v", ErrEncoding, err)
	}
	return &j, nil
}
