package monitor

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sunosaathi/sanket/internal/training"
)

// Fixed series colors: train blue, val red.
var (
	trainColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	valColor   = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// SaveCurves writes loss_curves.png and accuracy_curves.png for a run's
// epoch history and returns the paths of the files written. Accuracies are
// plotted as percentages.
func SaveCurves(history []training.EpochResult, outputDir string) ([]string, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("no epochs to plot")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	trainLoss := make(plotter.XYs, 0, len(history))
	valLoss := make(plotter.XYs, 0, len(history))
	trainAcc := make(plotter.XYs, 0, len(history))
	valAcc := make(plotter.XYs, 0, len(history))
	for _, h := range history {
		x := float64(h.Epoch)
		trainLoss = append(trainLoss, plotter.XY{X: x, Y: h.TrainLoss})
		valLoss = append(valLoss, plotter.XY{X: x, Y: h.ValLoss})
		trainAcc = append(trainAcc, plotter.XY{X: x, Y: h.TrainAcc * 100})
		valAcc = append(valAcc, plotter.XY{X: x, Y: h.ValAcc * 100})
	}

	lossFile := filepath.Join(outputDir, "loss_curves.png")
	if err := saveCurvePlot("Training vs Validation Loss", "Loss", lossFile, trainLoss, valLoss); err != nil {
		return nil, fmt.Errorf("save loss plot: %w", err)
	}

	accFile := filepath.Join(outputDir, "accuracy_curves.png")
	if err := saveCurvePlot("Training vs Validation Accuracy", "Accuracy (%)", accFile, trainAcc, valAcc); err != nil {
		return nil, fmt.Errorf("save accuracy plot: %w", err)
	}

	return []string{lossFile, accFile}, nil
}

// saveCurvePlot renders one train/val line pair to a PNG file.
func saveCurvePlot(title, yLabel, file string, train, val plotter.XYs) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Epoch"
	p.Y.Label.Text = yLabel

	trainLine, err := plotter.NewLine(train)
	if err != nil {
		return err
	}
	trainLine.Color = trainColor
	trainLine.Width = vg.Points(1.5)
	p.Add(trainLine)
	p.Legend.Add("train", trainLine)

	valLine, err := plotter.NewLine(val)
	if err != nil {
		return err
	}
	valLine.Color = valColor
	valLine.Width = vg.Points(1.5)
	p.Add(valLine)
	p.Legend.Add("val", valLine)

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 6*vg.Inch, file)
}
