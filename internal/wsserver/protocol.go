// Package wsserver streams workspace projections (the rendered tree and the
// tab strip) to the page over a local WebSocket.
//
// # Binary frame protocol
//
// Binary frame format: [1 byte: topic length][topic bytes][JSON payload]
//
//   - Byte 0: uint8 length of the topic (1..255).
//   - Bytes 1..1+topicLen: topic name, ASCII.
//   - Remaining bytes: the JSON-encoded projection.
//
// EncodeTopicFrame produces frames in this format; DecodeTopicFrame parses them.
package wsserver

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Topics published by the application.
const (
	TopicTree = "tree"
	TopicTabs = "tabs"
)

// maxTopicLen is the longest topic that fits the 1-byte length prefix.
const maxTopicLen = 255

// EncodeTopicFrame marshals payload to JSON and prefixes it with topic.
// An empty or over-long topic is an error.
func EncodeTopicFrame(topic string, payload any) ([]byte, error) {
	if topic == "" {
		return nil, errors.New("wsserver: encode frame: topic must not be empty")
	}
	if len(topic) > maxTopicLen {
		return nil, fmt.Errorf("wsserver: encode frame: topic length %d exceeds %d", len(topic), maxTopicLen)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wsserver: encode frame %s: %w", topic, err)
	}

	buf := make([]byte, 1+len(topic)+len(data))
	buf[0] = byte(len(topic))
	copy(buf[1:], topic)
	copy(buf[1+len(topic):], data)
	return buf, nil
}

// DecodeTopicFrame parses a frame produced by EncodeTopicFrame.
// The returned payload shares memory with frame.
func DecodeTopicFrame(frame []byte) (topic string, payload []byte, err error) {
	if len(frame) < 1 {
		return "", nil, errors.New("wsserver: decode frame: empty frame")
	}
	topicLen := int(frame[0])
	if topicLen == 0 {
		return "", nil, errors.New("wsserver: decode frame: empty topic")
	}
	if len(frame) < 1+topicLen {
		return "", nil, fmt.Errorf("wsserver: decode frame: frame too short for topic length %d (frame length %d)", topicLen, len(frame))
	}
	return string(frame[1 : 1+topicLen]), frame[1+topicLen:], nil
}
