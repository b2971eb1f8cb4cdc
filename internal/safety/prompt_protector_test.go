//go:build !integration

package safety

import (
	"fmt"
	"strings"
	"testing"

	"tcross-assistant/internal/domain/model"
)

func TestBuildProtectedMessages_Structure(t *testing.T) {
	p := NewPromptProtector()
	vehicle := model.VehicleInfo{Year: "2022", Version: "250 TSI Highline"}
	raw := "Qual o consumo?  <b> 100%"

	msgs := p.BuildProtectedMessages(raw, FilterContext("Consumo: 11 km/l"), vehicle)
	if len(msgs) != 5 {
		t.Fatalf("got %d messages, want 5", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[0].Content != SystemRules {
		t.Fatalf("first message must be the rules, got %+v", msgs[0])
	}
	for i := 1; i <= 7; i++ {
		if !strings.Contains(SystemRules, fmt.Sprintf("\n%d. ", i)) {
			t.Errorf("rule %d missing", i)
		}
	}
	for i := 0; i < 4; i++ {
		if msgs[i].Role != "system" {
			t.Errorf("message %d role = %s", i, msgs[i].Role)
		}
	}
	if !strings.Contains(msgs[1].Content, "VW T-Cross 250 TSI Highline 2022") {
		t.Errorf("vehicle message = %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[2].Content, "Consumo: 11 km/l") {
		t.Errorf("context message = %q", msgs[2].Content)
	}

	last := msgs[4]
	if last.Role != "user" {
		t.Fatalf("last role = %s", last.Role)
	}
	want := UserMessageStart + "\n" + raw + "\n" + UserMessageEnd
	if last.Content != want {
		t.Fatalf("user message = %q, want %q", last.Content, want)
	}
}

func TestBuildProtectedMessages_ContextCapAndPlaceholder(t *testing.T) {
	p := NewPromptProtector()

	msgs := p.BuildProtectedMessages("oi", "", model.VehicleInfo{})
	if msgs[2].Content != emptyContextText {
		t.Errorf("empty context should use placeholder, got %q", msgs[2].Content)
	}
	if !strings.Contains(msgs[1].Content, model.DefaultVehicle().Label()) {
		t.Errorf("zero vehicle should fall back to default: %q", msgs[1].Content)
	}

	long := strings.Repeat("y", 2500)
	msgs = p.BuildProtectedMessages("oi", long, model.DefaultVehicle())
	if !strings.Contains(msgs[2].Content, strings.Repeat("y", MaxPromptContextLength)+"...") {
		t.Fatal("context should be capped with ellipsis")
	}
	if strings.Contains(msgs[2].Content, strings.Repeat("y", MaxPromptContextLength+1)) {
		t.Fatal("context exceeds cap")
	}
}

func TestBuildProtectedMessages_CapKeepsContextDelimiters(t *testing.T) {
	p := NewPromptProtector()
	// three retrieved chunks of 1000 runes each
	chunks := []string{strings.Repeat("a", 1000), strings.Repeat("b", 1000), strings.Repeat("c", 1000)}
	wrapped := ContextStart + "\n" + strings.Join(chunks, "\n\n") + "\n" + ContextEnd

	got := p.BuildProtectedMessages("oi", wrapped, model.DefaultVehicle())[2].Content
	if !strings.HasSuffix(got, "...\n"+ContextEnd) {
		t.Fatalf("end delimiter lost: ...%q", got[len(got)-80:])
	}
	if !strings.Contains(got, ContextStart+"\n"+strings.Repeat("a", 1000)) {
		t.Fatal("start delimiter lost")
	}
	body := strings.TrimSuffix(got[strings.Index(got, ContextStart)+len(ContextStart)+1:], "...\n"+ContextEnd)
	if n := len([]rune(body)); n != MaxPromptContextLength {
		t.Fatalf("context body has %d runes, want %d", n, MaxPromptContextLength)
	}

	short := FilterContext("Consumo: 11 km/l")
	if got := p.BuildProtectedMessages("oi", short, model.DefaultVehicle())[2].Content; !strings.HasSuffix(got, short) {
		t.Fatalf("short context changed: %q", got)
	}
}

func TestBuildProtectedMessages_DoesNotResanitize(t *testing.T) {
	p := NewPromptProtector()
	raw := "a\n\n\n\nb {{{{ }}}}"
	msgs := p.BuildProtectedMessages(raw, "", model.DefaultVehicle())
	if !strings.Contains(msgs[4].Content, raw) {
		t.Fatalf("user text was altered: %q", msgs[4].Content)
	}
}
