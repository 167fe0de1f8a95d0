package cloudage

import (
	"strings"

	"github.com/samber/lo"
)

const (
	topicSeparator      = "/"
	singleLevelWildcard = "+"
	multiLevelWildcard  = "#"
)

// Router builds and matches the topics a controller publishes on.
//
// Status topics look like <prefix>/<device_id>[/<suffix...>]. Some firmware
// omits the fixed prefix, so a single-level wildcard variant is subscribed
// as well.
type Router struct {
	Prefix string
}

func NewRouter(prefix string) Router {
	prefix = strings.Trim(prefix, topicSeparator)
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Router{Prefix: prefix}
}

// CommandTopic is where command frames for a device are published.
func (r Router) CommandTopic(deviceID string) string {
	return r.prefix() + topicSeparator + deviceID
}

// TopicsFor returns the subscription patterns covering every status variant
// of a device, always in the same order.
func (r Router) TopicsFor(deviceID string) []string {
	root := r.CommandTopic(deviceID)
	return []string{
		root,
		root + topicSeparator + multiLevelWildcard,
		singleLevelWildcard + topicSeparator + deviceID + topicSeparator + multiLevelWildcard,
	}
}

// TopicsForAll returns the de-duplicated subscription set for many devices.
func (r Router) TopicsForAll(deviceIDs []string) []string {
	return lo.Uniq(lo.FlatMap(deviceIDs, func(id string, _ int) []string {
		return r.TopicsFor(id)
	}))
}

// Owns reports whether topic belongs to deviceID's status stream.
func (r Router) Owns(topic, deviceID string) bool {
	if deviceID == "" {
		return false
	}
	return lo.ContainsBy(r.TopicsFor(deviceID), func(pattern string) bool {
		return Match(pattern, topic)
	})
}

// DeviceOf returns the device id candidate carried by a status topic. The
// caller still has to confirm ownership against a registered device.
func (r Router) DeviceOf(topic string) (string, bool) {
	parts := strings.Split(topic, topicSeparator)
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	if !r.Owns(topic, parts[1]) {
		return "", false
	}
	return parts[1], true
}

func (r Router) prefix() string {
	if r.Prefix == "" {
		return DefaultTopicPrefix
	}
	return r.Prefix
}

// Match reports whether topic matches an MQTT subscription pattern. A "+"
// segment matches exactly one segment, a trailing "#" matches zero or more
// trailing segments. Segments are compared exactly, never by substring.
func Match(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	patternParts := strings.Split(pattern, topicSeparator)
	topicParts := strings.Split(topic, topicSeparator)

	for i, p := range patternParts {
		if p == multiLevelWildcard {
			return i == len(patternParts)-1
		}
		if i >= len(topicParts) {
			return false
		}
		if p != singleLevelWildcard && p != topicParts[i] {
			return false
		}
	}
	return len(patternParts) == len(topicParts)
}

// ValidDeviceID reports whether id can be embedded in a topic as one segment.
func ValidDeviceID(id string) bool {
	return id != "" && !strings.ContainsAny(id, topicSeparator+singleLevelWildcard+multiLevelWildcard)
}
