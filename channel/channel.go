// Package channel derives canonical pub/sub channel names for marketplace
// entities. All functions are pure and deterministic: two parties computing
// a channel name independently always converge on the same string, with no
// coordination handshake.
//
// TypeID strings never contain ':', so the prefix separator cannot collide
// with identifier content.
package channel

import "github.com/missionhub/entitle/id"

const (
	missionPrefix = "mission:"
	directPrefix  = "direct:"
)

// Mission returns the channel name for a mission's discussion feed. One
// channel exists per mission.
func Mission(missionID id.MissionID) string {
	return missionPrefix + missionID.String()
}

// Direct returns the channel name for a direct conversation between two
// users. The pair is unordered: the participants are sorted by their
// canonical string form before concatenation, so Direct(a, b) == Direct(b, a)
// for all inputs. A self-channel (a == b) is a well-defined degenerate case,
// not an error.
func Direct(a, b id.UserID) string {
	lo, hi := a.String(), b.String()
	if hi < lo {
		lo, hi = hi, lo
	}
	return directPrefix + lo + ":" + hi
}
