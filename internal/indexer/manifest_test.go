package indexer

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func TestNormalizeSplit(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Train", "train"},
		{"training", "train"},
		{"Validate", "val"},
		{"valid", "val"},
		{"validation", "val"},
		{"TEST", "test"},
		{"testing", "test"},
		{" Holdout ", "holdout"},
	}
	for _, tt := range tests {
		if got := NormalizeSplit(tt.in); got != tt.want {
			t.Errorf("NormalizeSplit(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScanManifest(t *testing.T) {
	dir := t.TempDir()
	red := color.RGBA{R: 255, A: 255}
	writePNG(t, filepath.Join(dir, "Train", "Phở", "b.png"), red)
	writePNG(t, filepath.Join(dir, "Train", "Phở", "a.png"), red)
	writePNG(t, filepath.Join(dir, "Train", "Bánh Mì", "x.png"), red)
	writePNG(t, filepath.Join(dir, "Validate", "Phở", "c.png"), red)
	writePNG(t, filepath.Join(dir, "Test", "Bánh Mì", "d.png"), red)
	writePNG(t, filepath.Join(dir, "Train", "!!!", "skip.png"), red)
	if err := os.WriteFile(filepath.Join(dir, "Train", "Phở", "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	rows, err := ScanManifest(dir, nil)
	if err != nil {
		t.Fatalf("ScanManifest: %v", err)
	}
	var got []string
	for _, r := range rows {
		got = append(got, r.Split+"/"+r.FoodName+"/"+filepath.Base(r.ImagePath))
	}
	want := []string{
		"test/banh_mi/d.png",
		"train/banh_mi/x.png",
		"train/pho/a.png",
		"train/pho/b.png",
		"val/pho/c.png",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("rows = %v, want %v", got, want)
	}
	if rows[0].SplitRaw != "Test" || rows[0].FoodNameRaw != "Bánh Mì" {
		t.Errorf("raw names not kept: %+v", rows[0])
	}
	if !filepath.IsAbs(rows[0].ImagePath) {
		t.Errorf("image path should be absolute: %s", rows[0].ImagePath)
	}

	if got := Classes(rows); !reflect.DeepEqual(got, []string{"banh_mi", "pho"}) {
		t.Errorf("Classes = %v", got)
	}
	counts := SplitCounts(rows)
	if counts["train"] != 3 || counts["val"] != 1 || counts["test"] != 1 {
		t.Errorf("SplitCounts = %v", counts)
	}
	if got := FilterSplits(rows, []string{"train", "Validation"}); len(got) != 4 {
		t.Errorf("FilterSplits kept %d rows, want 4", len(got))
	}
}

func TestScanManifest_MissingDir(t *testing.T) {
	if _, err := ScanManifest(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestManifest_WriteRead(t *testing.T) {
	rows := []Row{
		{ImagePath: "/data/train/pho/1.jpg", Split: "train", SplitRaw: "Train", FoodName: "pho", FoodNameRaw: "Phở"},
		{ImagePath: "/data/val/bun_cha/2.jpg", Split: "val", SplitRaw: "Validate", FoodName: "bun_cha", FoodNameRaw: "Bún chả, Hà Nội"},
	}
	path := filepath.Join(t.TempDir(), "out", "manifest.csv")
	if err := WriteManifest(path, rows); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if !reflect.DeepEqual(got, rows) {
		t.Errorf("got %+v, want %+v", got, rows)
	}
}

func TestReadManifest_DedupAndMissingColumns(t *testing.T) {
	csvText := "image_path,split,food_name\n/a.jpg,Training,pho\n/a.jpg,train,bun_cha\n/b.jpg,test,bun_cha\n"
	rows, err := readRows(strings.NewReader(csvText))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].FoodName != "pho" || rows[0].Split != "train" {
		t.Errorf("first row should win: %+v", rows[0])
	}

	if _, err := readRows(strings.NewReader("image_path,split\n/a.jpg,train\n")); err == nil {
		t.Error("expected error for missing food_name column")
	}
}
