package channel_test

import (
	"strings"
	"testing"

	"github.com/missionhub/entitle/channel"
	"github.com/missionhub/entitle/id"
)

func TestMissionIsStable(t *testing.T) {
	missionID := id.MustParse("msn_01h2xcejqtf2nbrexx3vqjhp41")

	want := "mission:msn_01h2xcejqtf2nbrexx3vqjhp41"
	for i := 0; i < 3; i++ {
		if got := channel.Mission(missionID); got != want {
			t.Fatalf("call %d: got %q, want %q", i, got, want)
		}
	}
}

func TestMissionDistinctPerMission(t *testing.T) {
	a := channel.Mission(id.NewMissionID())
	b := channel.Mission(id.NewMissionID())
	if a == b {
		t.Errorf("two missions mapped to the same channel %q", a)
	}
}

func TestDirectIsSymmetric(t *testing.T) {
	tests := []struct {
		name string
		a, b id.UserID
	}{
		{"distinct users", id.NewUserID(), id.NewUserID()},
		{"another pair", id.NewUserID(), id.NewUserID()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ab := channel.Direct(tt.a, tt.b)
			ba := channel.Direct(tt.b, tt.a)
			if ab != ba {
				t.Errorf("Direct not symmetric: %q != %q", ab, ba)
			}
		})
	}
}

func TestDirectSelfChannel(t *testing.T) {
	u := id.NewUserID()

	got := channel.Direct(u, u)
	want := "direct:" + u.String() + ":" + u.String()
	if got != want {
		t.Errorf("self-channel: got %q, want %q", got, want)
	}
}

func TestDirectOrdersLexicographically(t *testing.T) {
	a := id.MustParse("user_01h2xcejqtf2nbrexx3vqjhp41")
	b := id.MustParse("user_01h455vb4pex5vsknk084sn02q")

	got := channel.Direct(b, a)
	if !strings.HasPrefix(got, "direct:"+a.String()+":") {
		t.Errorf("smaller identifier should come first: %q", got)
	}
}

func TestChannelNamespacesAreDisjoint(t *testing.T) {
	if strings.HasPrefix(channel.Mission(id.NewMissionID()), "direct:") {
		t.Error("mission channel leaked into direct namespace")
	}
	if strings.HasPrefix(channel.Direct(id.NewUserID(), id.NewUserID()), "mission:") {
		t.Error("direct channel leaked into mission namespace")
	}
}
