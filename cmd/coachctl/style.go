package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/coachline/coachline/internal/models"
	"github.com/coachline/coachline/internal/realtime"
)

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	userStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))
	aiStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("135"))
	alertStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("1")).Padding(0, 1)

	badgeBase   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	stateBadges = map[realtime.State]lipgloss.Style{
		realtime.StateIdle:       badgeBase.Foreground(lipgloss.Color("250")).Background(lipgloss.Color("236")),
		realtime.StateConnecting: badgeBase.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("130")),
		realtime.StateListening:  badgeBase.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("28")),
		realtime.StateThinking:   badgeBase.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")),
		realtime.StateSpeaking:   badgeBase.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("90")),
	}
)

func stateBadge(s realtime.State) string {
	style, ok := stateBadges[s]
	if !ok {
		style = badgeBase
	}
	return style.Render(strings.ToUpper(s.String()))
}

func senderLabel(s models.Sender) string {
	if s == models.SenderUser {
		return userStyle.Render("You")
	}
	return aiStyle.Render("Coach")
}

// console renders conversation callbacks. They arrive from the event
// goroutine and from the input loop, so writes are serialised.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) state(s realtime.State) {
	c.printf("%s\n", stateBadge(s))
}

func (c *console) message(m realtime.Message) {
	suffix := ""
	if m.Sender == models.SenderUser && !m.Persisted {
		suffix = " " + mutedStyle.Render("(not saved)")
	}
	c.printf("%s %s%s\n", senderLabel(m.Sender), m.Text, suffix)
}

// caption shows the AI's partial reply. An empty caption is a reset.
func (c *console) caption(text string) {
	if text == "" {
		return
	}
	c.printf("%s\n", mutedStyle.Render("… "+text))
}

// Alert implements realtime.Alerter
func (c *console) Alert(a realtime.Alert) {
	c.printf("%s\n", alertStyle.Render(labelStyle.Render(a.Title)+"\n"+a.Description))
}

func (c *console) info(text string) {
	c.printf("%s\n", mutedStyle.Render(text))
}

func (c *console) success(text string) {
	c.printf("%s\n", successStyle.Render(text))
}
