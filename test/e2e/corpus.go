// Package e2e runs the whole pipeline on a generated image corpus: scan, build, predict,
// personalize and evaluate.
package e2e

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
)

// Dish is one class in the generated corpus. Every image of a dish is a solid shade of Base.
type Dish struct {
	Folder      string
	Label       string
	Base        color.RGBA
	Ingredients string
}

// Corpus is a generated dataset laid out as {split}/{class}/*.png.
type Corpus struct {
	Dishes       []Dish
	TrainPerDish int
	TestPerDish  int
}

// BuildCorpus returns four dishes with well separated colours.
func BuildCorpus() *Corpus {
	return &Corpus{
		Dishes: []Dish{
			{Folder: "Phở", Label: "pho", Base: color.RGBA{R: 230, G: 30, B: 30, A: 255}, Ingredients: "bánh phở, thịt bò, hành"},
			{Folder: "Bún Bò Huế", Label: "bun_bo_hue", Base: color.RGBA{R: 30, G: 200, B: 40, A: 255}, Ingredients: "bún, giò heo, sả, ớt"},
			{Folder: "Bánh Mì", Label: "banh_mi", Base: color.RGBA{R: 30, G: 40, B: 220, A: 255}, Ingredients: "bánh mì, pate, chả lụa"},
			{Folder: "Cơm Tấm", Label: "com_tam", Base: color.RGBA{R: 220, G: 210, B: 30, A: 255}, Ingredients: "cơm tấm, sườn nướng, trứng"},
		},
		TrainPerDish: 3,
		TestPerDish:  1,
	}
}

// shade darkens c by step*12 on every channel.
func shade(c color.RGBA, step int) color.RGBA {
	d := uint8(step * 12)
	sub := func(v uint8) uint8 {
		if v < d {
			return 0
		}
		return v - d
	}
	return color.RGBA{R: sub(c.R), G: sub(c.G), B: sub(c.B), A: 255}
}

// WriteImages writes the corpus under dir. Test images reuse the first training shade.
func (c *Corpus) WriteImages(dir string) error {
	for _, d := range c.Dishes {
		for i := 0; i < c.TrainPerDish; i++ {
			if err := writeSolidPNG(filepath.Join(dir, "Train", d.Folder, fmt.Sprintf("%d.png", i)), shade(d.Base, i)); err != nil {
				return err
			}
		}
		for i := 0; i < c.TestPerDish; i++ {
			if err := writeSolidPNG(filepath.Join(dir, "Test", d.Folder, fmt.Sprintf("%d.png", i)), shade(d.Base, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecipesCSV returns a recipes CSV for the corpus using the default column names.
func (c *Corpus) RecipesCSV() string {
	var b strings.Builder
	b.WriteString("class_name,vietnamese_name,ingredients,instructions\n")
	for _, d := range c.Dishes {
		fmt.Fprintf(&b, "%s,%s,\"%s\",\"Nấu %s.\"\n", d.Folder, d.Folder, d.Ingredients, d.Folder)
	}
	return b.String()
}

func writeSolidPNG(path string, c color.Color) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	img := image.NewRGBA(image.Rect(0, 0, 12, 12))
	for y := 0; y < 12; y++ {
		for x := 0; x < 12; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return err
	}
	return f.Close()
}
