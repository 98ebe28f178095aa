package core

// Config is petrel base configuration handed to the services
type Config struct {
	UserAgent       string
	PageSize        int
	MaxVisible      int
	ScrollThreshold int
	SpeechBackend   string // "none", "command" or "http"
	SpeechCommand   string
	SpeechPort      int
}
