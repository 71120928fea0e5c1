package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hyperjump/ajimi/internal/evaluation"
	"github.com/hyperjump/ajimi/internal/predict"
	"github.com/hyperjump/ajimi/internal/recipe"
	"github.com/hyperjump/ajimi/internal/recommender"
	"github.com/hyperjump/ajimi/internal/session"
)

func samplePrediction() *recommender.Prediction {
	return &recommender.Prediction{
		TopClass:        "pho",
		PersonalizedTop: "bun_bo_hue",
		Confidence:      0.55,
		IsUncertain:     true,
		Personalized:    true,
		RankedClasses: []predict.ClassScore{
			{ClassLabel: "pho", AggregateScore: 1.2, Score: 0.24, Votes: 2},
			{ClassLabel: "bun_bo_hue", AggregateScore: 1.0, Score: 0.2, Votes: 2},
		},
		Ranked: []session.RankedClass{
			{ClassLabel: "bun_bo_hue", OriginalScore: 0.2, Score: 0.35, OriginalRank: 1, Liked: true},
			{ClassLabel: "pho", OriginalScore: 0.24, Score: 0.24},
		},
		Neighbors:     []recommender.Neighbor{{ClassLabel: "pho", Similarity: 0.55, SourceRef: "train/pho/1.jpg"}},
		Recipe:        &recipe.Recipe{Key: "pho", NameRaw: "Phở", Title: "Phở Bò", Ingredients: "bánh phở", Instructions: strings.Repeat("nấu ", 200)},
		SimilarDishes: []string{"bun_bo_hue"},
		GroupMembers:  []string{"bun_bo_hue", "mi_quang"},
		GroupName:     "Bún & Mì",
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"json", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWritePrediction_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePrediction(&buf, samplePrediction(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Prediction: Phở Bò (pho)",
		"Low confidence",
		"Personalized pick: bun_bo_hue",
		"[liked]",
		"train/pho/1.jpg",
		"Also in Bún & Mì: bun_bo_hue, mi_quang",
		"Recipe: Phở Bò",
		"...",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWritePrediction_NoRecipe(t *testing.T) {
	p := samplePrediction()
	p.Recipe = nil
	var buf bytes.Buffer
	if err := WritePrediction(&buf, p, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "No recipe available.") || !strings.Contains(buf.String(), "Prediction: pho ") {
		t.Errorf("output:\n%s", buf.String())
	}
}

func TestWritePrediction_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePrediction(&buf, samplePrediction(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded recommender.Prediction
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.TopClass != "pho" || len(decoded.Ranked) != 2 || decoded.Recipe == nil {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteReport(t *testing.T) {
	r := &evaluation.Report{Split: "test", Images: 4, Failed: 1, Metrics: evaluation.Metrics{Top1Accuracy: 0.75, TopKHitRate: 1, MRR: 0.875}}
	var buf bytes.Buffer
	if err := WriteReport(&buf, r, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "Top-1 Accuracy: 0.7500") || !strings.Contains(buf.String(), "MRR:            0.8750") {
		t.Errorf("output:\n%s", buf.String())
	}
	buf.Reset()
	if err := WriteReport(&buf, r, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded evaluation.Report
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil || decoded.Metrics.MRR != 0.875 {
		t.Errorf("decoded = %+v, err %v", decoded, err)
	}
}

func TestWriteSearchHits(t *testing.T) {
	var buf bytes.Buffer
	hits := []recipe.SearchHit{{Key: "banh_xeo", Score: 1.5}}
	if err := WriteSearchHits(&buf, "xeo", hits, OutputText); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "banh_xeo") || !strings.Contains(buf.String(), `Found 1 dishes for "xeo"`) {
		t.Errorf("output:\n%s", buf.String())
	}
}
