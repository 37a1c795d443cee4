// Package rooms names the logical broadcast groups of the hub and tracks the
// explicit call-room rosters used for peer negotiation.
package rooms

import (
	"errors"
	"strings"
)

const (
	userPrefix      = "user_"
	communityPrefix = "community_"
	privatePrefix   = "private"
	callPrefix      = "videocall"
	sep             = "_"
)

var (
	ErrInvalidRoomID       = errors.New("invalid room id format")
	ErrMissingParticipants = errors.New("missing course, student or tutor in room id")
	ErrInvalidIdentifier   = errors.New("identifier must be non-empty and must not contain '_'")
)

// Triple identifies a tutor-student conversation within a course.
type Triple struct {
	CourseID  string
	StudentID string
	TutorID   string
}

// Validate checks that every part can be embedded in a composite room id.
func (t Triple) Validate() error {
	for _, id := range []string{t.CourseID, t.StudentID, t.TutorID} {
		if !ValidID(id) {
			return ErrInvalidIdentifier
		}
	}
	return nil
}

// ValidID reports whether id can be used as a segment of a composite room id.
func ValidID(id string) bool {
	return id != "" && !strings.Contains(id, sep)
}

// UserRoom is joined by every connection of a user.
func UserRoom(userID string) string {
	return userPrefix + userID
}

// CommunityRoom is the public chat room of a course.
func CommunityRoom(communityID string) string {
	return communityPrefix + communityID
}

// PrivateChatID returns the canonical private-chat id. The roles are positional,
// so student and tutor compute the same key.
func PrivateChatID(t Triple) string {
	return strings.Join([]string{privatePrefix, t.CourseID, t.StudentID, t.TutorID}, sep)
}

// ParsePrivateChatID is the inverse of PrivateChatID.
func ParsePrivateChatID(id string) (Triple, error) {
	return parseTriple(id, privatePrefix)
}

// CallRoomID returns the call room id for a triple.
func CallRoomID(t Triple) string {
	return strings.Join([]string{callPrefix, t.CourseID, t.StudentID, t.TutorID}, sep)
}

// ParseCallRoom validates a call room id of the form videocall_<course>_<student>_<tutor>.
func ParseCallRoom(id string) (Triple, error) {
	return parseTriple(id, callPrefix)
}

func parseTriple(id, prefix string) (Triple, error) {
	parts := strings.Split(id, sep)
	if len(parts) != 4 || parts[0] != prefix {
		return Triple{}, ErrInvalidRoomID
	}
	t := Triple{CourseID: parts[1], StudentID: parts[2], TutorID: parts[3]}
	if t.CourseID == "" || t.StudentID == "" || t.TutorID == "" {
		return Triple{}, ErrMissingParticipants
	}
	return t, nil
}
