package hardware

import (
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"cloudpico-station/internal/snapshot"
)

const lineHeight = 11

// OLED draws DisplayLines on an SSD1306 panel.
type OLED struct {
	mu  sync.Mutex
	dev *ssd1306.Dev
}

func NewOLED(bus i2c.Bus, width, height int) (*OLED, error) {
	dev, err := ssd1306.NewI2C(bus, &ssd1306.Opts{W: width, H: height})
	if err != nil {
		return nil, fmt.Errorf("ssd1306: %w", err)
	}
	return &OLED{dev: dev}, nil
}

func (o *OLED) Render(snap snapshot.Snapshot) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	img := drawLines(o.dev.Bounds(), DisplayLines(snap))
	if err := o.dev.Draw(img.Bounds(), img, image.Point{}); err != nil {
		return fmt.Errorf("ssd1306 draw: %w", err)
	}
	return nil
}

func (o *OLED) Halt() error {
	return o.dev.Halt()
}

func drawLines(bounds image.Rectangle, lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(bounds)
	d := font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		d.Dot = fixed.P(0, (i+1)*lineHeight-1)
		d.DrawString(line)
	}
	return img
}
