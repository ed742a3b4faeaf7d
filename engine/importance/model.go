// Package importance implements the learned relevance scorer: a small
// feed-forward network that maps a semantic embedding to a [0,1]
// importance score, trained online from retrieval feedback via
// binary cross-entropy and Adam.
//
// No tensor/autograd library is present anywhere in this codebase's
// dependency set (see DESIGN.md), so the network, its backward pass, and
// the Adam optimizer are hand-rolled on plain slices.
package importance

import (
	"math"
	"math/rand"
	"sync"
)

const (
	hidden1 = 256
	hidden2 = 128
	dropoutRate = 0.1

	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// layer holds the weights, biases, and Adam moment estimates for one dense
// layer of shape (in, out).
type layer struct {
	in, out int
	w       []float64 // out x in, row-major
	b       []float64 // out

	mw, vw []float64
	mb, vb []float64
}

func newLayer(in, out int, rng *rand.Rand) *layer {
	scale := math.Sqrt(2.0 / float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = rng.NormFloat64() * scale
	}
	return &layer{
		in: in, out: out,
		w: w, b: make([]float64, out),
		mw: make([]float64, in*out), vw: make([]float64, in*out),
		mb: make([]float64, out), vb: make([]float64, out),
	}
}

func (l *layer) forward(x []float64) []float64 {
	out := make([]float64, l.out)
	for o := 0; o < l.out; o++ {
		sum := l.b[o]
		base := o * l.in
		for i := 0; i < l.in; i++ {
			sum += l.w[base+i] * x[i]
		}
		out[o] = sum
	}
	return out
}

// Model is the importance-prediction network: Linear(D,256) -> ReLU ->
// Dropout -> Linear(256,128) -> ReLU -> Dropout -> Linear(128,1) -> Sigmoid.
type Model struct {
	mu sync.Mutex

	dim int
	l1  *layer
	l2  *layer
	l3  *layer

	lr   float64
	step int64
	rng  *rand.Rand
}

// New builds a Model for the given input embedding dimension and learning
// rate, seeding its weights deterministically from seed.
func New(dim int, learningRate float64, seed int64) *Model {
	rng := rand.New(rand.NewSource(seed))
	return &Model{
		dim: dim,
		l1:  newLayer(dim, hidden1, rng),
		l2:  newLayer(hidden1, hidden2, rng),
		l3:  newLayer(hidden2, 1, rng),
		lr:  learningRate,
		rng: rng,
	}
}

func relu(x []float64) ([]float64, []float64) {
	out := make([]float64, len(x))
	mask := make([]float64, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
			mask[i] = 1
		}
	}
	return out, mask
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// forward runs the full network, optionally applying dropout, and returns
// the intermediate activations needed for backprop.
type forwardState struct {
	x       []float64
	h1Raw   []float64
	h1      []float64
	relu1Mask []float64
	drop1Mask []float64
	h2Raw   []float64
	h2      []float64
	relu2Mask []float64
	drop2Mask []float64
	logit   float64
	pred    float64
}

func (m *Model) forward(x []float64, training bool) forwardState {
	h1Raw := m.l1.forward(x)
	h1, relu1Mask := relu(h1Raw)
	drop1Mask := applyDropout(h1, training, m.rng)

	h2Raw := m.l2.forward(h1)
	h2, relu2Mask := relu(h2Raw)
	drop2Mask := applyDropout(h2, training, m.rng)

	logit := m.l3.forward(h2)[0]
	return forwardState{
		x: x, h1Raw: h1Raw, h1: h1, relu1Mask: relu1Mask, drop1Mask: drop1Mask,
		h2Raw: h2Raw, h2: h2, relu2Mask: relu2Mask, drop2Mask: drop2Mask,
		logit: logit, pred: sigmoid(logit),
	}
}

func applyDropout(x []float64, training bool, rng *rand.Rand) []float64 {
	mask := make([]float64, len(x))
	for i := range x {
		mask[i] = 1
	}
	if !training {
		return mask
	}
	keep := 1.0 - dropoutRate
	for i := range x {
		if rng.Float64() < dropoutRate {
			mask[i] = 0
			x[i] = 0
		} else {
			x[i] /= keep
			mask[i] = 1 / keep
		}
	}
	return mask
}

// Predict returns the importance score for a semantic embedding, with
// dropout disabled (inference mode).
func (m *Model) Predict(embedding []float32) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	x := m.padOrTrim(toFloat64(embedding))
	return m.forward(x, false).pred
}

func (m *Model) padOrTrim(x []float64) []float64 {
	if len(x) == m.dim {
		return x
	}
	out := make([]float64, m.dim)
	copy(out, x)
	return out
}

// TrainBatch runs one step of binary-cross-entropy training over a batch of
// (embedding, target) pairs, averaging gradients across the batch, and
// returns the mean loss before the update.
func (m *Model) TrainBatch(embeddings [][]float32, targets []float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(embeddings) == 0 {
		return 0
	}
	m.step++

	gw1 := make([]float64, len(m.l1.w))
	gb1 := make([]float64, len(m.l1.b))
	gw2 := make([]float64, len(m.l2.w))
	gb2 := make([]float64, len(m.l2.b))
	gw3 := make([]float64, len(m.l3.w))
	gb3 := make([]float64, len(m.l3.b))

	var totalLoss float64
	n := float64(len(embeddings))

	for idx, emb := range embeddings {
		target := clamp01(targets[idx])
		x := m.padOrTrim(toFloat64(emb))
		fs := m.forward(x, true)

		pred := clampEps(fs.pred)
		totalLoss += -(target*math.Log(pred) + (1-target)*math.Log(1-pred))

		dLogit := fs.pred - target

		// layer 3 grads
		for i := 0; i < m.l3.in; i++ {
			gw3[i] += dLogit * fs.h2[i]
		}
		gb3[0] += dLogit

		dh2 := make([]float64, m.l3.in)
		for i := 0; i < m.l3.in; i++ {
			dh2[i] = dLogit * m.l3.w[i] * fs.drop2Mask[i] * fs.relu2Mask[i]
		}

		for o := 0; o < m.l2.out; o++ {
			base := o * m.l2.in
			for i := 0; i < m.l2.in; i++ {
				gw2[base+i] += dh2[o] * fs.h1[i]
			}
			gb2[o] += dh2[o]
		}

		dh1 := make([]float64, m.l2.in)
		for i := 0; i < m.l2.in; i++ {
			var sum float64
			for o := 0; o < m.l2.out; o++ {
				sum += dh2[o] * m.l2.w[o*m.l2.in+i]
			}
			dh1[i] = sum * fs.drop1Mask[i] * fs.relu1Mask[i]
		}

		for o := 0; o < m.l1.out; o++ {
			base := o * m.l1.in
			for i := 0; i < m.l1.in; i++ {
				gw1[base+i] += dh1[o] * x[i]
			}
			gb1[o] += dh1[o]
		}
	}

	scale := 1.0 / n
	scaleSlice(gw1, scale)
	scaleSlice(gb1, scale)
	scaleSlice(gw2, scale)
	scaleSlice(gb2, scale)
	scaleSlice(gw3, scale)
	scaleSlice(gb3, scale)

	m.adamStep(m.l1, gw1, gb1)
	m.adamStep(m.l2, gw2, gb2)
	m.adamStep(m.l3, gw3, gb3)

	return totalLoss / n
}

func scaleSlice(s []float64, scale float64) {
	for i := range s {
		s[i] *= scale
	}
}

func (m *Model) adamStep(l *layer, gw, gb []float64) {
	bc1 := 1 - math.Pow(adamBeta1, float64(m.step))
	bc2 := 1 - math.Pow(adamBeta2, float64(m.step))

	updateParam := func(param, grad, mom, vel []float64) {
		for i := range param {
			mom[i] = adamBeta1*mom[i] + (1-adamBeta1)*grad[i]
			vel[i] = adamBeta2*vel[i] + (1-adamBeta2)*grad[i]*grad[i]
			mHat := mom[i] / bc1
			vHat := vel[i] / bc2
			param[i] -= m.lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
		}
	}

	updateParam(l.w, gw, l.mw, l.vw)
	updateParam(l.b, gb, l.mb, l.vb)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampEps(v float64) float64 {
	const eps = 1e-7
	if v < eps {
		return eps
	}
	if v > 1-eps {
		return 1 - eps
	}
	return v
}
