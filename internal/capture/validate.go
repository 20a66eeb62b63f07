package capture

import (
	"image"
	"image/color"
	"math"
)

// Limites padrão de validação de frame.
const (
	DefaultMinDimension = 100
	DefaultMinStdDev    = 5.0
)

// Validator decide se um frame decodificado serve como snapshot.
// Frames chapados (tela preta/azul que algumas câmeras emitem durante o PTZ),
// congelados em cor única ou pequenos demais são descartados.
type Validator struct {
	MinDimension int
	MinStdDev    float64
}

func DefaultValidator() Validator {
	return Validator{MinDimension: DefaultMinDimension, MinStdDev: DefaultMinStdDev}
}

// Valid: não nulo, as duas dimensões >= MinDimension e média dos desvios-padrão
// por canal (R,G,B) >= MinStdDev.
func (v Validator) Valid(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	if b.Dx() < v.MinDimension || b.Dy() < v.MinDimension {
		return false
	}
	return PixelStdDev(img) >= v.MinStdDev
}

type channelStats struct {
	n          uint64
	sum, sumSq [3]uint64
}

func (s *channelStats) add(r, g, b uint8) {
	s.n++
	for i, c := range [3]uint8{r, g, b} {
		s.sum[i] += uint64(c)
		s.sumSq[i] += uint64(c) * uint64(c)
	}
}

func (s *channelStats) meanStdDev() float64 {
	if s.n == 0 {
		return 0
	}
	n := float64(s.n)
	var total float64
	for i := 0; i < 3; i++ {
		mean := float64(s.sum[i]) / n
		variance := float64(s.sumSq[i])/n - mean*mean
		if variance < 0 {
			variance = 0
		}
		total += math.Sqrt(variance)
	}
	return total / 3
}

// PixelStdDev devolve a média, entre os canais R, G e B, do desvio-padrão
// populacional dos pixels.
func PixelStdDev(img image.Image) float64 {
	var st channelStats
	b := img.Bounds()

	switch m := img.(type) {
	case *image.YCbCr:
		// saída padrão do image/jpeg; evita o boxing de color.Color por pixel
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				yi := m.YOffset(x, y)
				ci := m.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(m.Y[yi], m.Cb[ci], m.Cr[ci])
				st.add(r, g, bl)
			}
		}
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				st.add(row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	case *image.Gray:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := m.Pix[m.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				st.add(row[x], row[x], row[x])
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				r, g, bl, _ := img.At(x, y).RGBA()
				st.add(uint8(r>>8), uint8(g>>8), uint8(bl>>8))
			}
		}
	}
	return st.meanStdDev()
}

// selectFrame devolve o frame do meio (índice k/2).
func selectFrame(frames []Frame) Frame {
	return frames[len(frames)/2]
}
