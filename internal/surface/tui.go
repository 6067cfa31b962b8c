package surface

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/muesli/termenv"
)

// TTYPath is the terminal the dialog opens when no streams are supplied.
const TTYPath = "/dev/tty"

// TUI launches a terminal confirmation dialog. Each dialog is a separate
// bubbletea program with its own event loop, run on its own goroutine.
type TUI struct {
	logger *slog.Logger
	input  io.Reader
	output io.Writer
}

// NewTUI returns a launcher that draws on the controlling terminal.
func NewTUI(logger *slog.Logger) *TUI {
	return &TUI{logger: logger}
}

// NewTUIWithIO returns a launcher bound to the given streams.
func NewTUIWithIO(input io.Reader, output io.Writer, logger *slog.Logger) *TUI {
	return &TUI{logger: logger, input: input, output: output}
}

// Launch implements Launcher.
func (t *TUI) Launch(ctx context.Context, req protocol.DecisionRequest, sink *oneshot.Chan[bool]) (Handle, error) {
	input, output, release, err := t.streams()
	if err != nil {
		return nil, err
	}

	renderer := lipgloss.NewRenderer(output, termenv.WithColorCache(true))
	model := newDialog(req, sink, newDialogStyles(renderer))

	prog := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(input),
		tea.WithOutput(output),
		tea.WithAltScreen(),
		tea.WithoutSignalHandler(),
	)

	h := &tuiHandle{prog: prog, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer release()

		if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			t.logger.Warn("confirmation dialog failed", "request_id", req.RequestID, "error", err)
		}
	}()

	t.logger.Debug("confirmation dialog launched", "request_id", req.RequestID)
	return h, nil
}

func (t *TUI) streams() (io.Reader, io.Writer, func(), error) {
	if t.input != nil && t.output != nil {
		return t.input, t.output, func() {}, nil
	}

	tty, err := os.OpenFile(TTYPath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrNoTerminal, err)
	}
	return tty, tty, func() { _ = tty.Close() }, nil
}

type tuiHandle struct {
	prog      *tea.Program
	closeOnce sync.Once
	done      chan struct{}
}

func (h *tuiHandle) Close() {
	h.closeOnce.Do(func() {
		// Send blocks until the event loop takes the message or the program
		// has finished, so it never outlives the dialog.
		go h.prog.Send(closeMsg{})
	})
}

func (h *tuiHandle) Done() <-chan struct{} {
	return h.done
}

// Messages the dialog understands besides bubbletea's own.
type (
	// actionMsg is an operator choice.
	actionMsg action
	// closeMsg is the close command from the bridge.
	closeMsg struct{}
)

type action int

const (
	actionConfirm action = iota
	actionCancel
)

type dialogState int

const (
	stateAwaiting dialogState = iota
	stateDecided
	stateClosed
)

type dialogKeys struct {
	Confirm key.Binding
	Cancel  key.Binding
	Next    key.Binding
	Select  key.Binding
}

func defaultDialogKeys() dialogKeys {
	return dialogKeys{
		Confirm: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "confirm")),
		Cancel:  key.NewBinding(key.WithKeys("n", "N", "esc", "ctrl+c"), key.WithHelp("n/esc", "cancel")),
		Next:    key.NewBinding(key.WithKeys("tab", "shift+tab", "left", "right", "h", "l"), key.WithHelp("tab", "switch")),
		Select:  key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "select")),
	}
}

type dialogStyles struct {
	frame   lipgloss.Style
	title   lipgloss.Style
	passkey lipgloss.Style
	button  lipgloss.Style
	focused lipgloss.Style
	status  lipgloss.Style
}

func newDialogStyles(r *lipgloss.Renderer) dialogStyles {
	button := r.NewStyle().Padding(0, 3).Margin(0, 1).Border(lipgloss.RoundedBorder())
	return dialogStyles{
		frame:   r.NewStyle().Padding(1, 4).Border(lipgloss.DoubleBorder()).BorderForeground(lipgloss.Color("11")),
		title:   r.NewStyle().Bold(true).MarginBottom(1),
		passkey: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).MarginBottom(1),
		button:  button.BorderForeground(lipgloss.Color("8")),
		focused: button.Bold(true).BorderForeground(lipgloss.Color("10")),
		status:  r.NewStyle().Italic(true).Foreground(lipgloss.Color("8")),
	}
}

// dialog is the bubbletea model for one confirmation.
type dialog struct {
	req    protocol.DecisionRequest
	sink   *oneshot.Chan[bool]
	keys   dialogKeys
	help   help.Model
	styles dialogStyles

	state  dialogState
	focus  action
	accept bool
	width  int
	height int
}

func newDialog(req protocol.DecisionRequest, sink *oneshot.Chan[bool], styles dialogStyles) dialog {
	return dialog{
		req:    req,
		sink:   sink,
		keys:   defaultDialogKeys(),
		help:   help.New(),
		styles: styles,
		focus:  actionConfirm,
	}
}

func (d dialog) Init() tea.Cmd {
	return nil
}

func (d dialog) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
		return d, nil

	case tea.KeyMsg:
		if d.state != stateAwaiting {
			return d, nil
		}
		switch {
		case key.Matches(msg, d.keys.Confirm):
			return d.Update(actionMsg(actionConfirm))
		case key.Matches(msg, d.keys.Cancel):
			return d.Update(actionMsg(actionCancel))
		case key.Matches(msg, d.keys.Next):
			if d.focus == actionConfirm {
				d.focus = actionCancel
			} else {
				d.focus = actionConfirm
			}
		case key.Matches(msg, d.keys.Select):
			return d.Update(actionMsg(d.focus))
		}
		return d, nil

	case actionMsg:
		if d.state != stateAwaiting {
			return d, nil
		}
		d.accept = action(msg) == actionConfirm
		d.sink.Send(d.accept)
		d.state = stateDecided
		return d, nil

	case closeMsg:
		d.state = stateClosed
		return d, tea.Quit
	}

	return d, nil
}

func (d dialog) View() string {
	if d.state == stateClosed {
		return ""
	}

	var footer string
	switch d.state {
	case stateAwaiting:
		footer = lipgloss.JoinVertical(lipgloss.Center,
			lipgloss.JoinHorizontal(lipgloss.Top,
				d.buttonView("Confirm", actionConfirm),
				d.buttonView("Cancel", actionCancel),
			),
			d.help.ShortHelpView([]key.Binding{d.keys.Confirm, d.keys.Cancel, d.keys.Next, d.keys.Select}),
		)
	case stateDecided:
		verdict := "Rejected"
		if d.accept {
			verdict = "Confirmed"
		}
		footer = d.styles.status.Render(verdict + ", closing…")
	}

	body := d.styles.frame.Render(lipgloss.JoinVertical(lipgloss.Center,
		d.styles.title.Render(d.req.Title()),
		d.styles.passkey.Render(d.req.Passkey),
		footer,
	))

	if d.width == 0 || d.height == 0 {
		return body
	}
	return lipgloss.Place(d.width, d.height, lipgloss.Center, lipgloss.Center, body)
}

func (d dialog) buttonView(label string, a action) string {
	if d.focus == a {
		return d.styles.focused.Render(label)
	}
	return d.styles.button.Render(label)
}
