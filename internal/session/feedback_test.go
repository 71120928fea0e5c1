package session

import (
	"reflect"
	"testing"
)

func TestFeedback_Actions(t *testing.T) {
	var fb Feedback
	fb.Dislike("pho")
	fb.Like("pho")
	if !fb.IsLiked("pho") || fb.IsDisliked("pho") {
		t.Error("like should clear an earlier dislike")
	}
	fb.Dislike("pho")
	if fb.IsLiked("pho") || !fb.IsDisliked("pho") {
		t.Error("dislike should clear an earlier like")
	}
	fb.Correct("banh_xeo")
	if !fb.IsLiked("banh_xeo") {
		t.Error("correction should count as a like")
	}
	if !fb.Personalized() {
		t.Error("feedback with entries is personalized")
	}
	if got := fb.LikedLabels(); !reflect.DeepEqual(got, []string{"banh_xeo"}) {
		t.Errorf("LikedLabels = %v", got)
	}
	fb.Reset()
	if fb.Personalized() {
		t.Error("reset should clear feedback")
	}
}

func TestFeedback_Apply(t *testing.T) {
	fb := NewFeedback()
	tests := []struct {
		action  Action
		label   string
		wantErr bool
	}{
		{ActionLike, "pho", false},
		{ActionDislike, "bun_bo", false},
		{ActionCorrect, "com_tam", false},
		{ActionLike, "", true},
		{Action("love"), "pho", true},
	}
	for _, tt := range tests {
		if err := fb.Apply(tt.action, tt.label); (err != nil) != tt.wantErr {
			t.Errorf("Apply(%s, %q) err = %v", tt.action, tt.label, err)
		}
	}
	if got := fb.LikedLabels(); !reflect.DeepEqual(got, []string{"com_tam", "pho"}) {
		t.Errorf("liked = %v", got)
	}
	if err := fb.Apply(ActionReset, ""); err != nil {
		t.Fatal(err)
	}
	if fb.Personalized() {
		t.Error("reset via Apply should clear")
	}
}

func TestFeedback_CloneIsIndependent(t *testing.T) {
	fb := NewFeedback()
	fb.Like("pho")
	c := fb.Clone()
	c.Like("bun_bo")
	if fb.IsLiked("bun_bo") {
		t.Error("clone shares state with original")
	}
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"like", "dislike", "correct", "reset"} {
		if _, err := ParseAction(s); err != nil {
			t.Errorf("ParseAction(%q): %v", s, err)
		}
	}
	if _, err := ParseAction("block"); err == nil {
		t.Error("expected error for unknown action")
	}
}
