package intar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"intar.dev/intar/internal/config"
	"intar.dev/intar/probe"
)

var (
	probesEvaluatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intar_probes_evaluated_total",
		Help: "Total probe evaluations completed, by vm and outcome.",
	}, []string{"vm", "passed"})

	probeCheckInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "intar_probe_check_inflight",
		Help: "Whether a check_all request is currently outstanding for a VM (0 or 1).",
	}, []string{"vm"})

	probeCheckErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intar_probe_check_errors_total",
		Help: "Total check_all requests that failed with a transport error after retries.",
	}, []string{"vm"})
)

func init() {
	prometheus.MustRegister(probesEvaluatedTotal, probeCheckInflight, probeCheckErrorsTotal)
}

// ScheduledProbe pairs a probe id with its VM and Spec for the scheduler
// to dispatch.
type ScheduledProbe struct {
	VM   string
	ID   string
	Spec probe.Spec
}

// ProbeEvent is one observation the scheduler emits on its ResultStream,
// carrying the full ProbeResult record plus whether this is a fresh
// transition or a repeat of the last-seen outcome.
type ProbeEvent struct {
	config.ProbeResultLine
	Repeat bool
}

// dedupKey identifies a (vm, probe) pair's last-seen outcome, which emit
// uses to avoid appending a repeated outcome to results.ndjson.
type dedupKey struct {
	vm string
	id string
}

type lastSeen struct {
	passed  bool
	message string
}

// Scheduler is the probe dispatch loop: a one-shot boot-phase sweep, a
// ticking post-phase loop with back-pressure and retry/backoff, and a
// subscription channel for consumers, built from plain goroutines and
// channels.
type Scheduler struct {
	channels    map[string]*AgentChannel // by vm name
	resultsPath string

	mu   sync.Mutex
	seen map[dedupKey]lastSeen

	stream chan ProbeEvent
}

// NewScheduler builds a Scheduler dispatching over channels (one
// AgentChannel per VM) and appending results to resultsPath
// (results.ndjson).
func NewScheduler(channels map[string]*AgentChannel, resultsPath string) *Scheduler {
	return &Scheduler{
		channels:    channels,
		resultsPath: resultsPath,
		seen:        make(map[dedupKey]lastSeen),
		stream:      make(chan ProbeEvent, 256),
	}
}

// ResultStream returns the subscription channel of probe observations.
func (s *Scheduler) ResultStream() <-chan ProbeEvent { return s.stream }

// RunBootPhase issues a single check_all per VM for its boot-phase
// probes, right after AgentHandshake.
func (s *Scheduler) RunBootPhase(ctx context.Context, byVM map[string][]ScheduledProbe) error {
	for vm, probes := range byVM {
		if err := s.checkAllWithRetry(ctx, vm, probes); err != nil {
			return err
		}
	}
	return nil
}

// RunPostPhase loops forever (until ctx is cancelled) issuing a check_all
// per VM every 3s, skipping a VM's tick if its prior call hasn't returned
// yet.
func (s *Scheduler) RunPostPhase(ctx context.Context, byVM map[string][]ScheduledProbe) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	inflight := make(map[string]bool, len(byVM))
	var inflightMu sync.Mutex

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for vm, probes := range byVM {
				inflightMu.Lock()
				busy := inflight[vm]
				if !busy {
					inflight[vm] = true
				}
				inflightMu.Unlock()
				if busy {
					continue
				}

				go func(vm string, probes []ScheduledProbe) {
					defer func() {
						inflightMu.Lock()
						inflight[vm] = false
						inflightMu.Unlock()
					}()
					s.checkAllWithRetry(ctx, vm, probes)
				}(vm, probes)
			}
		}
	}
}

// checkAllWithRetry issues check_all for vm's probes, retrying transport
// errors up to 3 times with 1s/2s/4s backoff.
func (s *Scheduler) checkAllWithRetry(ctx context.Context, vm string, probes []ScheduledProbe) error {
	ch, ok := s.channels[vm]
	if !ok {
		return fmt.Errorf("no agent channel for vm %q", vm)
	}

	probeIDSpecs := make([]probe.IDSpec, len(probes))
	for i, p := range probes {
		probeIDSpecs[i] = probe.IDSpec{ID: p.ID, Spec: p.Spec}
	}

	probeCheckInflight.WithLabelValues(vm).Set(1)
	defer probeCheckInflight.WithLabelValues(vm).Set(0)

	backoffs := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	var lastErr error

	for attempt := 0; attempt <= len(backoffs); attempt++ {
		results, err := ch.CheckAll(ctx, probeIDSpecs, 30*time.Second)
		if err == nil {
			s.emit(vm, results)
			return nil
		}
		lastErr = err
		if attempt < len(backoffs) {
			select {
			case <-time.After(backoffs[attempt]):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	probeCheckErrorsTotal.WithLabelValues(vm).Inc()
	failResults := make([]probe.Result, len(probes))
	for i, p := range probes {
		failResults[i] = probe.Fail(p.ID, fmt.Sprintf("agent error: %s", lastErr))
	}
	s.emit(vm, failResults)
	return lastErr
}

// emit records results into results.ndjson and the subscription stream.
// A result whose (passed, message) equals the last one seen for the same
// VM and probe is not appended to results.ndjson again; it is still
// published on the stream, with Repeat set and a fresh EvaluatedAt.
func (s *Scheduler) emit(vm string, results []probe.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range results {
		probesEvaluatedTotal.WithLabelValues(vm, boolLabel(r.Passed)).Inc()

		key := dedupKey{vm: vm, id: r.ID}
		prior, existed := s.seen[key]
		repeat := existed && prior.passed == r.Passed && prior.message == r.Message
		s.seen[key] = lastSeen{passed: r.Passed, message: r.Message}

		line := config.ProbeResultLine{
			ProbeID:     r.ID,
			VMName:      vm,
			Passed:      r.Passed,
			Message:     r.Message,
			EvaluatedAt: time.Now(),
		}

		if !repeat {
			if err := appendResultLine(s.resultsPath, line); err != nil {
				fmt.Fprintf(os.Stderr, "intar: append results.ndjson: %v\n", err)
			}
		}

		select {
		case s.stream <- ProbeEvent{ProbeResultLine: line, Repeat: repeat}:
		default:
			<-s.stream
			s.stream <- ProbeEvent{ProbeResultLine: line, Repeat: repeat}
		}
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// appendResultLine appends one ndjson line to path, creating it if needed.
func appendResultLine(path string, line config.ProbeResultLine) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	bs, err := json.Marshal(line)
	if err != nil {
		return err
	}
	bs = append(bs, '\n')
	_, err = f.Write(bs)
	return err
}
