package chat

import "time"

// Session captures a transient counseling conversation bound to one topic.
type Session struct {
	ID        string    `json:"id"`
	TopicID   string    `json:"topicId"`
	StartedAt time.Time `json:"startedAt"`
}
