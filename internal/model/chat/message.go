package chat

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one entry of a counseling transcript. Content of the in-flight
// model entry grows while IsStreaming is set and is frozen afterwards.
type Message struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	IsStreaming bool      `json:"isStreaming"`
	Timestamp   time.Time `json:"timestamp"`
}

// Patch carries the mutable fields of a Message. Nil fields are left untouched.
type Patch struct {
	Content     *string
	IsStreaming *bool
}

// ContentPatch replaces the content of a message.
func ContentPatch(content string) Patch {
	return Patch{Content: &content}
}

// StreamingPatch sets the streaming flag of a message.
func StreamingPatch(streaming bool) Patch {
	return Patch{IsStreaming: &streaming}
}

// Apply returns msg with the patch merged in.
func (p Patch) Apply(msg Message) Message {
	if p.Content != nil {
		msg.Content = *p.Content
	}
	if p.IsStreaming != nil {
		msg.IsStreaming = *p.IsStreaming
	}
	return msg
}
