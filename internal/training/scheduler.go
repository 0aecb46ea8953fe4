package training

import (
	"log"
	"math"

	"github.com/sunosaathi/sanket/internal/nn"
)

// PlateauScheduler halves the optimizer learning rate when validation loss
// stops improving. This is plateau detection, not step decay: the rate only
// moves when patience consecutive epochs fail to beat the best loss seen so
// far, and the counter resets after every reduction.
type PlateauScheduler struct {
	opt      *nn.Adam
	factor   float64
	patience int

	best float64
	bad  int
}

// NewPlateauScheduler wraps opt with plateau detection. factor is the
// multiplier applied on a plateau (0.5 halves the rate), patience the number
// of consecutive non-improving epochs tolerated before reducing.
func NewPlateauScheduler(opt *nn.Adam, factor float64, patience int) *PlateauScheduler {
	return &PlateauScheduler{
		opt:      opt,
		factor:   factor,
		patience: patience,
		best:     math.Inf(1),
	}
}

// Step feeds one epoch's validation loss to the scheduler, after validation
// and before checkpointing. Returns true when the learning rate was reduced
// this step.
func (s *PlateauScheduler) Step(valLoss float64) bool {
	if valLoss < s.best {
		s.best = valLoss
		s.bad = 0
		return false
	}

	s.bad++
	if s.bad < s.patience {
		return false
	}

	s.bad = 0
	old := s.opt.LR
	s.opt.LR *= s.factor
	log.Printf("[Trainer] Validation loss plateaued; reducing learning rate %.6f -> %.6f", old, s.opt.LR)
	return true
}

// LR returns the optimizer's current learning rate.
func (s *PlateauScheduler) LR() float64 {
	return s.opt.LR
}
