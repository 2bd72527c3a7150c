package agents

import (
	"context"
	"errors"
	"sync"

	convai "github.com/siwaht/convai"
	"github.com/siwaht/convai/audio"
	"github.com/siwaht/convai/shared"
	"go.uber.org/zap"
)

// CLIAgent wires a call session to the local microphone, the local
// speakers and a terminal printer. Spawn returns once the call has
// reached Initializing; Done is closed when the call ends.
type CLIAgent struct {
	logger  shared.LoggerAdapter
	printer *shared.Printer
	session *convai.CallSession

	done     chan struct{}
	doneOnce sync.Once

	mu sync.Mutex
}

func (a *CLIAgent) Spawn(
	ctx context.Context,
	logger shared.LoggerAdapter,
	cfg *convai.Config,
	printer *shared.Printer,
) error {
	if logger == nil {
		return shared.ErrNoLogger
	}
	if cfg == nil {
		return errors.New("no config provided")
	}
	if printer == nil {
		return errors.New("no printer provided")
	}
	a.logger = logger
	a.printer = printer
	a.done = make(chan struct{})
	a.logger.Info("spawning CLI agent")
	if err := a.printer.Writeln("🤖 Spawning CLI agent...\n", 0); err != nil {
		a.logger.Error("printing spawning message", err)
	}

	connType, err := convai.ParseConnectionType(cfg.ConnectionType)
	if err != nil {
		a.logger.Error("parsing connection type", err)
		return err
	}

	// Creating bootstrap client
	bootstrap, err := convai.NewHTTPBootstrap(cfg.BaseURL, cfg.APIKey)
	if err != nil {
		a.logger.Error("creating bootstrap client", err)
		return err
	}
	a.logger.Info("bootstrap client created successfully")

	// Setting up speaker output
	if err := a.printer.Writeln("🔈 Setting up speaker output...", 0); err != nil {
		a.logger.Error("printing speaker setup message", err)
	}
	sink, err := NewOtoSink(audio.TargetRate)
	if err != nil {
		a.logger.Error("creating speaker sink", err)
		return err
	}
	a.logger.Info("speaker sink created successfully")

	// Creating call session
	session, err := convai.NewCallSession(logger, convai.Deps{
		Bootstrap: bootstrap,
		Capture:   MalgoProvider{},
		Sink:      sink,
	}, convai.WithObserver(&cliObserver{agent: a}))
	if err != nil {
		a.logger.Error("creating call session", err)
		return err
	}
	a.session = session
	a.logger.Info("call session created successfully")

	// Starting the call
	if err := a.printer.Writeln("🎤 Accessing microphone and dialing...", 0); err != nil {
		a.logger.Error("printing dialing message", err)
	}
	if err := session.Start(ctx, cfg.AgentID, connType); err != nil {
		a.logger.Error("starting call", err)
		if errors.Is(err, shared.ErrMicrophoneDenied) {
			if perr := a.printer.Writeln("❌ Unable to access microphone. Please ensure that your microphone is connected and that you have granted permission to access it.\n", 0); perr != nil {
				a.logger.Error("printing microphone access failure message", perr)
			}
		}
		_ = session.Close()
		return err
	}
	a.logger.Info("call started successfully")
	if err := a.printer.Writeln("✅ Connected. Speak when ready.\n", 0); err != nil {
		a.logger.Error("printing connected message", err)
	}
	return nil
}

// Done is closed once the call has returned to idle.
func (a *CLIAgent) Done() <-chan struct{} {
	return a.done
}

func (a *CLIAgent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		a.finish()
		return nil
	}
	if err := a.session.End(); err != nil && !errors.Is(err, shared.ErrSessionClosed) {
		return err
	}
	return a.session.Close()
}

func (a *CLIAgent) finish() {
	a.doneOnce.Do(func() {
		if a.done != nil {
			close(a.done)
		}
	})
}

// cliObserver renders session notifications to the terminal. It runs
// on the session goroutine and must never call back into the session.
type cliObserver struct {
	agent *CLIAgent
}

var _ convai.Observer = (*cliObserver)(nil)

func (o *cliObserver) StateChanged(s convai.State) {
	o.agent.logger.Info("call state changed", zap.Stringer("state", s))
	switch s {
	case convai.StateActive:
		if err := o.agent.printer.Writeln("🟢 Call active.\n", 0); err != nil {
			o.agent.logger.Error("printing call active message", err)
		}
	case convai.StateIdle:
		if err := o.agent.printer.Writeln("\n👋 Call ended.", 0); err != nil {
			o.agent.logger.Error("printing call ended message", err)
		}
		o.agent.finish()
	}
}

func (o *cliObserver) TranscriptAppended(entry convai.TranscriptEntry) {
	if err := o.agent.printer.Turn(string(entry.Role), entry.Message); err != nil {
		o.agent.logger.Error("printing transcript turn", err)
	}
}

func (o *cliObserver) EventReceived(kind convai.EventKind) {
	o.agent.logger.Debug("event received", zap.Stringer("kind", kind))
}

func (o *cliObserver) ErrorSurfaced(err error) {
	o.agent.logger.Error("call error surfaced", err)
	if perr := o.agent.printer.Writeln("❌ "+err.Error(), 0); perr != nil {
		o.agent.logger.Error("printing call error message", perr)
	}
}
