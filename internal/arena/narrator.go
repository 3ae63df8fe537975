package arena

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/park285/cheese-arena/internal/agent"
	"github.com/park285/cheese-arena/internal/domain"
	"github.com/park285/cheese-arena/internal/msgcat"
)

// Narrator receives human-facing progress updates.
type Narrator interface {
	Started(rec *domain.GameRecord)
	Thinking(agentName string, side domain.Color) (done func())
	Defaulted(agentName string, reply agent.Reply)
	Invalid(agentName, candidate string, legal []string, board string)
	Fallback(agentName, san string)
	Moved(m domain.MoveRecord)
	Finished(rec *domain.GameRecord)
	Saved(rec *domain.GameRecord)
	SaveFailed(rec *domain.GameRecord, err error, path string)
}

const spinnerCharset = 14

// ConsoleNarrator prints status lines from the catalog's status.* templates.
type ConsoleNarrator struct {
	catalog *msgcat.Catalog
	out     io.Writer
	spin    bool

	mu sync.Mutex
}

func NewConsoleNarrator(catalog *msgcat.Catalog, out io.Writer, spin bool) *ConsoleNarrator {
	return &ConsoleNarrator{catalog: catalog, out: out, spin: spin}
}

func (n *ConsoleNarrator) line(key string, data map[string]any) {
	text, err := n.catalog.Render("status."+key, data)
	if err != nil {
		text = fmt.Sprintf("[%s] %v", key, data)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, text)
}

func (n *ConsoleNarrator) Started(rec *domain.GameRecord) {
	n.line("start", map[string]any{"ID": rec.ID, "White": rec.WhiteAgent, "Black": rec.BlackAgent})
}

func (n *ConsoleNarrator) Thinking(agentName string, side domain.Color) func() {
	data := map[string]any{"Agent": agentName, "Color": side.Title()}
	if !n.spin {
		n.line("thinking", data)
		return func() {}
	}
	text, _ := n.catalog.Render("status.thinking", data)
	s := spinner.New(spinner.CharSets[spinnerCharset], 100*time.Millisecond, spinner.WithWriter(n.out))
	s.Suffix = " " + text
	s.Start()
	return s.Stop
}

func (n *ConsoleNarrator) Defaulted(agentName string, reply agent.Reply) {
	n.line("defaulted", map[string]any{"Agent": agentName, "Attempts": reply.Attempts, "Text": reply.Text})
}

func (n *ConsoleNarrator) Invalid(agentName, candidate string, legal []string, board string) {
	n.line("invalid", map[string]any{"Agent": agentName, "Candidate": candidate, "Legal": strings.Join(legal, ", ")})
	if board != "" {
		n.mu.Lock()
		fmt.Fprintln(n.out, board)
		n.mu.Unlock()
	}
}

func (n *ConsoleNarrator) Fallback(agentName, san string) {
	n.line("fallback", map[string]any{"Agent": agentName, "SAN": san})
}

func (n *ConsoleNarrator) Moved(m domain.MoveRecord) {
	n.line("move", map[string]any{"Agent": m.Agent, "Color": m.Color.Title(), "SAN": m.SAN})
}

func (n *ConsoleNarrator) Finished(rec *domain.GameRecord) {
	if rec.IsError() {
		n.line("aborted", map[string]any{"Reason": rec.TerminationReason})
		return
	}
	n.line("result", map[string]any{"Result": rec.Result, "Reason": rec.TerminationReason})
	if rec.Winner != "" {
		n.line("winner", map[string]any{"Winner": rec.Winner})
	}
}

func (n *ConsoleNarrator) Saved(rec *domain.GameRecord) {
	n.line("saved", map[string]any{"ID": rec.ID})
}

func (n *ConsoleNarrator) SaveFailed(rec *domain.GameRecord, err error, path string) {
	n.line("save_failed", map[string]any{"ID": rec.ID, "Error": err.Error(), "Path": path})
}

type nopNarrator struct{}

func (nopNarrator) Started(*domain.GameRecord)                   {}
func (nopNarrator) Thinking(string, domain.Color) func()         { return func() {} }
func (nopNarrator) Defaulted(string, agent.Reply)                {}
func (nopNarrator) Invalid(string, string, []string, string)     {}
func (nopNarrator) Fallback(string, string)                      {}
func (nopNarrator) Moved(domain.MoveRecord)                      {}
func (nopNarrator) Finished(*domain.GameRecord)                  {}
func (nopNarrator) Saved(*domain.GameRecord)                     {}
func (nopNarrator) SaveFailed(*domain.GameRecord, error, string) {}

type nopRecorder struct{}

func (nopRecorder) RecordInvalidMove(context.Context, string)  {}
func (nopRecorder) RecordFallback(context.Context, string)     {}
func (nopRecorder) RecordGame(context.Context, string, string) {}
