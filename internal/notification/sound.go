package notification

import "log"

// SoundSpec describes the alert sound to start for an instrument.
type SoundSpec struct {
	Token string // instrument the sound belongs to
	Name  string // sound identifier understood by the player
	Loop  bool   // keep playing until stopped
}

// Handle is an opaque reference to a playing sound. Zero means none.
type Handle uint64

// Player is the audio capability supplied by the embedding application.
// Start returns a handle the engine keeps in the instrument's state and
// passes back to Stop when activity resumes or alerts are acknowledged.
type Player interface {
	Start(spec SoundSpec) (Handle, error)
	Stop(h Handle)
}

// LogPlayer is a Player that only logs, for headless deployments.
type LogPlayer struct {
	next Handle
}

// NewLogPlayer creates a log-only sound player.
func NewLogPlayer() *LogPlayer {
	return &LogPlayer{}
}

func (p *LogPlayer) Start(spec SoundSpec) (Handle, error) {
	p.next++
	log.Printf("[sound] start %q for token=%s loop=%v (handle %d)", spec.Name, spec.Token, spec.Loop, p.next)
	return p.next, nil
}

func (p *LogPlayer) Stop(h Handle) {
	log.Printf("[sound] stop handle %d", h)
}
