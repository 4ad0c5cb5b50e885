package action

import "testing"

func TestDetector_DetectsTypedBlock(t *testing.T) {
	d := NewDetector("", nil)
	text := "some reasoning\n```action\n{\"type\":\"log\",\"content\":\"hello\"}\n```\nmore text"
	actions := d.Detect(text)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Type != "log" || actions[0].Content != "hello" {
		t.Fatalf("unexpected action: %+v", actions[0])
	}
}

func TestDetector_CustomOutputFormat(t *testing.T) {
	d := NewDetector("cmd", nil)
	actions := d.Detect("```cmd\n{\"type\":\"file\",\"content\":\"x\"}\n```")
	if len(actions) != 1 || actions[0].Type != "file" {
		t.Fatalf("expected custom-tagged block to be detected, got %+v", actions)
	}
	if actions := d.Detect("```action\n{\"type\":\"file\",\"content\":\"x\"}\n```"); len(actions) != 0 {
		t.Fatalf("default tag should not match a custom-format detector, got %+v", actions)
	}
}

func TestDetector_FiltersDisallowedTypes(t *testing.T) {
	d := NewDetector("", []string{"log"})
	text := "```action\n{\"type\":\"file\",\"content\":\"x\"}\n```\n```action\n{\"type\":\"log\",\"content\":\"y\"}\n```"
	actions := d.Detect(text)
	if len(actions) != 1 || actions[0].Type != "log" {
		t.Fatalf("expected only the allowed type to survive, got %+v", actions)
	}
}

func TestDetector_DropsMalformedBlocksSilently(t *testing.T) {
	d := NewDetector("", nil)
	text := "```action\nnot json at all\n```"
	if actions := d.Detect(text); len(actions) != 0 {
		t.Fatalf("expected malformed block to be dropped, got %+v", actions)
	}
}

func TestDetector_DropsBlockMissingType(t *testing.T) {
	d := NewDetector("", nil)
	text := "```action\n{\"content\":\"no type field\"}\n```"
	if actions := d.Detect(text); len(actions) != 0 {
		t.Fatalf("expected block without a type field to be dropped, got %+v", actions)
	}
}

func TestDetector_MetadataCarriesExtraFields(t *testing.T) {
	d := NewDetector("", nil)
	text := "```action\n{\"type\":\"issue-action\",\"content\":\"c\",\"issue\":7,\"action\":\"close\"}\n```"
	actions := d.Detect(text)
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Metadata["issue"].(float64) != 7 || actions[0].Metadata["action"] != "close" {
		t.Fatalf("unexpected metadata: %+v", actions[0].Metadata)
	}
}

func TestDetector_RawBlockRoundTrip(t *testing.T) {
	d := NewDetector("", nil)
	a := DetectedAction{Type: "log", Content: "hi"}
	block, err := d.RawBlock(a)
	if err != nil {
		t.Fatalf("RawBlock: %v", err)
	}
	round := d.Detect(block)
	if len(round) != 1 || round[0].Type != "log" || round[0].Content != "hi" {
		t.Fatalf("round-trip mismatch: %+v", round)
	}
}
