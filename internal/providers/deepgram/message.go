package deepgram

import (
	"encoding/json"
	"errors"
	"strings"

	"parley/internal/domain"
)

var (
	closeStreamMessage = []byte(`{"type":"CloseStream"}`)
	keepAliveMessage   = []byte(`{"type":"KeepAlive"}`)
)

type alternative struct {
	Transcript string `json:"transcript"`
}

type channelResult struct {
	Alternatives []alternative `json:"alternatives"`
}

// listenMessage is one JSON frame from the listen endpoint. Results arrive
// under channel; some API versions nest them under results.channels.
type listenMessage struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel channelResult `json:"channel"`
	Results struct {
		Channels []channelResult `json:"channels"`
	} `json:"results"`
}

// decodeMessage turns a frame into a transcript event. ok is false for
// frames that carry nothing to deliver, including ones that are not JSON.
// A provider error frame is returned as err.
func decodeMessage(payload []byte) (event domain.TranscriptEvent, ok bool, err error) {
	var msg listenMessage
	if json.Unmarshal(payload, &msg) != nil {
		return domain.TranscriptEvent{}, false, nil
	}
	return msg.event()
}

func (m listenMessage) event() (domain.TranscriptEvent, bool, error) {
	switch {
	case strings.EqualFold(m.Type, "Error"):
		return domain.TranscriptEvent{}, false, errors.New(m.errorText())
	case strings.EqualFold(m.Type, "UtteranceEnd"):
		return domain.TranscriptEvent{Kind: domain.TranscriptKindUtteranceEnd}, true, nil
	}

	text := m.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false, nil
	}

	kind := domain.TranscriptKindPartial
	if m.IsFinal || m.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{Kind: kind, Text: text, IsSpeechFinal: m.SpeechFinal}, true, nil
}

func (m listenMessage) transcript() string {
	if text := firstTranscript(m.Channel); text != "" {
		return text
	}
	if len(m.Results.Channels) > 0 {
		return firstTranscript(m.Results.Channels[0])
	}
	return ""
}

func (m listenMessage) errorText() string {
	for _, candidate := range []string{m.Message, m.Description} {
		if text := strings.TrimSpace(candidate); text != "" {
			return text
		}
	}
	return "deepgram returned an unknown error"
}

func firstTranscript(ch channelResult) string {
	if len(ch.Alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(ch.Alternatives[0].Transcript)
}
