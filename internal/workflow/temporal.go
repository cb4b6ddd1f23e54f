package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.temporal.io/sdk/client"
)

type TemporalConfig struct {
	HostPort  string
	Namespace string
}

var dialTemporalFn = client.Dial

// DialTemporal returns a Dialer that connects to a Temporal frontend.
func DialTemporal(cfg TemporalConfig) Dialer {
	return func() (Transport, error) {
		c, err := dialTemporalFn(client.Options{
			HostPort:  cfg.HostPort,
			Namespace: cfg.Namespace,
			Logger:    newTemporalLogger(log.Default()),
		})
		if err != nil {
			return nil, fmt.Errorf("dial temporal %s: %w", cfg.HostPort, err)
		}
		return NewTemporalTransport(c), nil
	}
}

// TemporalTransport maps Transport calls onto untyped workflow calls. Signals
// and queries target the latest run of the session id.
type TemporalTransport struct {
	client client.Client
}

func NewTemporalTransport(c client.Client) *TemporalTransport {
	return &TemporalTransport{client: c}
}

func (t *TemporalTransport) StartWorkflow(ctx context.Context, sessionID string, input RideInput) error {
	run, err := t.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        sessionID,
		TaskQueue: TaskQueue,
	}, WorkflowType, input)
	if err != nil {
		return err
	}
	log.Printf("workflow started: id=%s run=%s", run.GetID(), run.GetRunID())
	return nil
}

func (t *TemporalTransport) Signal(ctx context.Context, sessionID, name string) error {
	return t.client.SignalWorkflow(ctx, sessionID, "", name, nil)
}

func (t *TemporalTransport) Query(ctx context.Context, sessionID, name string, out any) error {
	value, err := t.client.QueryWorkflow(ctx, sessionID, "", name)
	if err != nil {
		return err
	}
	if !value.HasValue() {
		return nil
	}
	return value.Get(out)
}

func (t *TemporalTransport) Close() {
	t.client.Close()
}

// temporalLogger routes SDK logs to the process logger.
type temporalLogger struct {
	out *log.Logger
}

func newTemporalLogger(out *log.Logger) temporalLogger {
	return temporalLogger{out: out}
}

func (l temporalLogger) Debug(string, ...interface{}) {}

func (l temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.print("INFO", msg, keyvals)
}

func (l temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.print("WARN", msg, keyvals)
}

func (l temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.print("ERROR", msg, keyvals)
}

func (l temporalLogger) print(level, msg string, keyvals []interface{}) {
	var b strings.Builder
	b.WriteString("temporal ")
	b.WriteString(level)
	b.WriteString(": ")
	b.WriteString(msg)
	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			fmt.Fprintf(&b, " %v=%v", keyvals[i], keyvals[i+1])
		} else {
			fmt.Fprintf(&b, " %v", keyvals[i])
		}
	}
	l.out.Print(b.String())
}
