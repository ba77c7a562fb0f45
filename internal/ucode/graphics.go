package ucode

import "nitro-dsp-hle/internal/clock"

const eventGraphicsFinish = "dsp.graphics.finish"

// Graphics data-memory scratch addresses. The real ucode stages source
// rows and destination pixels through these before they ever reach host
// memory; since nothing host-visible depends on the staging itself (only
// the final host-memory result does), this implementation reads/writes
// host memory directly and never touches these addresses.
const (
	graphicsSrcScratchAddr uint32 = 0x4000
	graphicsDstScratchAddr uint32 = 0xC000
)

const (
	filterBilinear = 2
	filterBicubic  = 3
	filterOneThird = 10
)

const (
	cmdScale  = 1
	cmdYUVRGB = 2
)

// Graphics implements the scaling/YUV-to-RGB ucode. Its command index
// arrives on CMD0; parameters are queued on pipe 7 the same way G711
// queues its own command block.
type Graphics struct {
	*Substrate
	Scheduler clock.Scheduler

	CmdState  int
	CmdParams [14]uint16
}

// NewGraphics wires a Graphics ucode instance against its collaborators.
func NewGraphics(sub *Substrate, sched clock.Scheduler, version int32) *Graphics {
	sub.UcodeVersion = version
	gr := &Graphics{Substrate: sub, Scheduler: sched}
	sched.RegisterEventFunc(eventGraphicsFinish, func(param uint32) { gr.FinishCmd(param) })
	return gr
}

func (gr *Graphics) ID() uint32 { return uint32(ClassGraphics)<<16 | uint32(uint16(gr.UcodeVersion)) }

// GraphicsState is the gob-serializable snapshot of Graphics's own fields,
// on top of its embedded Substrate's state.
type GraphicsState struct {
	Substrate SubstrateState
	CmdState  int
	CmdParams [14]uint16
}

func (gr *Graphics) SaveState() GraphicsState {
	return GraphicsState{Substrate: gr.Substrate.SaveState(), CmdState: gr.CmdState, CmdParams: gr.CmdParams}
}

func (gr *Graphics) LoadState(st GraphicsState) {
	gr.Substrate.LoadState(st.Substrate)
	gr.CmdState = st.CmdState
	gr.CmdParams = st.CmdParams
}

func (gr *Graphics) Reset() {
	gr.Substrate.Reset()
	gr.CmdState = 0
	gr.CmdParams = [14]uint16{}
}

// SendData layers Graphics' CMD0 command-select and pipe-7 trigger on top
// of the shared substrate write path.
func (gr *Graphics) SendData(index int, val uint16) {
	gr.Substrate.SendData(index, val)

	switch index {
	case 0:
		gr.TryStartCmd()
	case 2:
		if val == 7 {
			gr.TryStartCmd()
		}
		gr.CmdWritten[2] = false
	}
}

// TryStartCmd dispatches on the command index most recently written to
// CMD0, pulling its parameter block off pipe 7 once enough words have
// arrived.
func (gr *Graphics) TryStartCmd() {
	if gr.CmdState != 0 {
		return
	}

	switch gr.CmdReg[0] {
	case cmdScale:
		if gr.GetPipeLength(7) < 14 {
			return
		}
		params := gr.ReadPipe(7, 14)
		copy(gr.CmdParams[:], params)
		gr.tryStartScale()
	case cmdYUVRGB:
		if gr.GetPipeLength(7) < 6 {
			return
		}
		params := gr.ReadPipe(7, 6)
		copy(gr.CmdParams[:6], params)
		gr.tryStartYUV()
	default:
		gr.SendReply(1, 0)
	}
}

func (gr *Graphics) tryStartScale() {
	filter := gr.CmdParams[4]
	rectW := uint32(gr.CmdParams[11])
	rectH := uint32(gr.CmdParams[12])
	scaleW := uint32(gr.CmdParams[7])
	scaleH := uint32(gr.CmdParams[8])

	var dstW, dstH uint32
	if filter == filterOneThird {
		if rectW%3 != 0 || rectH%3 != 0 {
			gr.SendReply(1, 0)
			return
		}
		dstW = rectW / 3
		dstH = rectH / 3
	} else {
		dstW = rectW * scaleW / 1000
		dstH = rectH * scaleH / 1000
	}

	switch filter {
	case filterBilinear:
		if rectW > 8192 || dstW > 8192 || dstW == 0 || dstH == 0 {
			gr.SendReply(1, 0)
			return
		}
	case filterBicubic:
		if rectW > 4096 || dstW > 4096 || dstW == 0 || dstH == 0 {
			gr.SendReply(1, 0)
			return
		}
	}

	srcW, srcH := rectW, rectH
	var cycles uint64
	switch filter {
	case filterOneThird:
		cycles = 30 * uint64(srcW) * uint64(srcH)
	case filterBilinear:
		cycles = 4*uint64(srcW)*uint64(srcH) + 58*uint64(dstW)*uint64(dstH)
	case filterBicubic:
		cycles = 4*uint64(srcW)*uint64(srcH) + 605*uint64(dstW)*uint64(dstH)
	default:
		cycles = 4*uint64(srcW)*uint64(srcH) + 26*uint64(dstW)*uint64(dstH)
	}
	cycles += 200

	gr.CmdState = 1
	gr.Scheduler.Schedule(eventGraphicsFinish, cycles, 0)
}

func (gr *Graphics) tryStartYUV() {
	length := uint32(gr.CmdParams[1])<<16 | uint32(gr.CmdParams[0])
	cycles := uint64(24)*uint64(length>>1) + 200

	gr.CmdState = 1
	gr.Scheduler.Schedule(eventGraphicsFinish, cycles, 0)
}

// FinishCmd runs the matching pixel routine, posts the completion reply,
// and tries to start whatever command has queued up behind it.
func (gr *Graphics) FinishCmd(param uint32) {
	switch gr.CmdReg[0] {
	case cmdScale:
		gr.runScale()
	case cmdYUVRGB:
		gr.runYUV()
	}

	gr.SendReply(1, 1)
	gr.CmdState = 0
	gr.TryStartCmd()
}

func packRGB555(r, g, b uint16) uint16 {
	return 0x8000 | (r & 0x1F) | ((g & 0x1F) << 5) | ((b & 0x1F) << 10)
}

func unpackRGB555(px uint16) (r, g, b uint16) {
	return px & 0x1F, (px >> 5) & 0x1F, (px >> 10) & 0x1F
}

func clamp8(v int32) int32 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

func clamp5(v int32) uint16 {
	if v < 0 {
		return 0
	}
	if v > 31 {
		return 31
	}
	return uint16(v)
}

func (gr *Graphics) runScale() {
	srcAddr := uint32(gr.CmdParams[1])<<16 | uint32(gr.CmdParams[0])
	dstAddr := uint32(gr.CmdParams[3])<<16 | uint32(gr.CmdParams[2])
	filter := gr.CmdParams[4]
	stride := uint32(gr.CmdParams[5])
	scaleW := uint32(gr.CmdParams[7])
	scaleH := uint32(gr.CmdParams[8])
	rectX := uint32(gr.CmdParams[9])
	rectY := uint32(gr.CmdParams[10])
	rectW := uint32(gr.CmdParams[11])
	rectH := uint32(gr.CmdParams[12])

	var dstW, dstH uint32
	if filter == filterOneThird {
		dstW, dstH = rectW/3, rectH/3
	} else {
		dstW, dstH = rectW*scaleW/1000, rectH*scaleH/1000
	}

	srcPixel := func(x, y uint32) uint16 {
		return gr.Bus.Read16(srcAddr + ((rectY+y)*stride+(rectX+x))*2)
	}
	writeDst := func(x, y uint32, px uint16) {
		gr.Bus.Write16(dstAddr+(y*dstW+x)*2, px)
	}

	switch filter {
	case filterOneThird:
		gr.scaleOneThird(rectW, dstW, dstH, srcPixel, writeDst)
	case filterBilinear:
		gr.scaleBilinear(rectW, rectH, dstW, dstH, srcPixel, writeDst)
	case filterBicubic:
		gr.scaleBicubic(rectW, rectH, dstW, dstH, srcPixel, writeDst)
	default:
		gr.scaleNearest(rectW, rectH, dstW, dstH, srcPixel, writeDst)
	}
}

// scaleNearest walks the destination grid with a fixed-point source
// position, using a half-pixel bias of 0x3FF and sub-pixel accumulation
// identical in shape between rows and columns.
func (gr *Graphics) scaleNearest(rectW, rectH, dstW, dstH uint32, srcPixel func(x, y uint32) uint16, writeDst func(x, y uint32, px uint16)) {
	if dstW < 2 || dstH < 2 {
		gr.scaleNearestDegenerate(rectW, rectH, dstW, dstH, srcPixel, writeDst)
		return
	}
	sxIncr := ((rectW - 2) << 10) / (dstW - 1)
	syIncr := ((rectH - 2) << 10) / (dstH - 1)

	sy := uint32(0x3FF)
	for dy := uint32(0); dy < dstH; dy++ {
		srcY := sy >> 10
		if srcY >= rectH {
			srcY = rectH - 1
		}
		sx := uint32(0x3FF)
		for dx := uint32(0); dx < dstW; dx++ {
			srcX := sx >> 10
			if srcX >= rectW {
				srcX = rectW - 1
			}
			writeDst(dx, dy, srcPixel(srcX, srcY))
			sx += sxIncr
		}
		sy += syIncr
	}
}

// scaleNearestDegenerate handles the edge case of a 0/1-wide or tall
// destination, where the normal increment formula would divide by zero.
func (gr *Graphics) scaleNearestDegenerate(rectW, rectH, dstW, dstH uint32, srcPixel func(x, y uint32) uint16, writeDst func(x, y uint32, px uint16)) {
	for dy := uint32(0); dy < dstH; dy++ {
		for dx := uint32(0); dx < dstW; dx++ {
			writeDst(dx, dy, srcPixel(0, 0))
		}
	}
}

// scaleBilinear blends the 4 nearest source pixels per output pixel with
// 10-bit fractional weights.
func (gr *Graphics) scaleBilinear(rectW, rectH, dstW, dstH uint32, srcPixel func(x, y uint32) uint16, writeDst func(x, y uint32, px uint16)) {
	if dstW < 2 || dstH < 2 {
		gr.scaleNearestDegenerate(rectW, rectH, dstW, dstH, srcPixel, writeDst)
		return
	}
	sxIncr := ((rectW - 2) << 10) / (dstW - 1)
	syIncr := ((rectH - 2) << 10) / (dstH - 1)

	sy := uint32(0x200)
	for dy := uint32(0); dy < dstH; dy++ {
		srcY0 := sy >> 10
		srcY1 := srcY0 + 1
		if srcY1 >= rectH {
			srcY1 = rectH - 1
		}
		fy0 := sy & 0x3FF
		fy1 := uint32(0x400) - fy0

		sx := uint32(0x200)
		for dx := uint32(0); dx < dstW; dx++ {
			srcX0 := sx >> 10
			srcX1 := srcX0 + 1
			if srcX1 >= rectW {
				srcX1 = rectW - 1
			}
			fx0 := sx & 0x3FF
			fx1 := uint32(0x400) - fx0

			v00r, v00g, v00b := unpackRGB555(srcPixel(srcX0, srcY0))
			v10r, v10g, v10b := unpackRGB555(srcPixel(srcX1, srcY0))
			v01r, v01g, v01b := unpackRGB555(srcPixel(srcX0, srcY1))
			v11r, v11g, v11b := unpackRGB555(srcPixel(srcX1, srcY1))

			blend := func(v00, v10, v01, v11 uint16) uint16 {
				out := (((uint64(v00)*uint64(fx1)+uint64(v10)*uint64(fx0))*uint64(fy1) +
					(uint64(v01)*uint64(fx1)+uint64(v11)*uint64(fx0))*uint64(fy0)) >> 20)
				return uint16(out)
			}
			r := blend(v00r, v10r, v01r, v11r)
			g := blend(v00g, v10g, v01g, v11g)
			b := blend(v00b, v10b, v01b, v11b)
			writeDst(dx, dy, packRGB555(r, g, b))

			sx += sxIncr
		}
		sy += syIncr
	}
}

// bicubicWeight implements the fixed-point cubic convolution kernel with
// a = -1, matching the source's literal intermediate casts.
func bicubicWeight(x uint32) int32 {
	switch {
	case x <= 0x400:
		s := int64(x) * int64(x) >> 2
		c := int32(uint32(s*int64(x)) >> 12)
		s2 := 2 * (s >> 2)
		return c - int32(s2) + 0x10000
	case x <= 0x800:
		s := int64(x) * int64(x)
		c := int32(uint32(uint32(s>>2)*x) >> 12)
		s2 := (5 * s) >> 4
		o := (-8 * int64(x)) << 6
		return -c + int32(s2) + int32(o) + 0x40000
	default:
		return 0
	}
}

func (gr *Graphics) scaleBicubic(rectW, rectH, dstW, dstH uint32, srcPixel func(x, y uint32) uint16, writeDst func(x, y uint32, px uint16)) {
	if dstW == 0 || dstH == 0 {
		return
	}
	sxIncr := ((rectW - 4) << 10) / maxu32(dstW-1, 1)
	syIncr := ((rectH - 4) << 10) / maxu32(dstH-1, 1)

	sy := uint32(0x200)
	for dy := uint32(0); dy < dstH; dy++ {
		baseY := sy >> 10
		fy := sy & 0x3FF
		wy := [4]int32{
			bicubicWeight(0x400 + fy),
			bicubicWeight(fy),
			bicubicWeight(0x400 - fy),
			bicubicWeight(0x800 - fy),
		}

		sx := uint32(0x200)
		for dx := uint32(0); dx < dstW; dx++ {
			baseX := sx >> 10
			fx := sx & 0x3FF
			wx := [4]int32{
				bicubicWeight(0x400 + fx),
				bicubicWeight(fx),
				bicubicWeight(0x400 - fx),
				bicubicWeight(0x800 - fx),
			}

			var tR, tG, tB int64
			for i := 0; i < 4; i++ {
				srcY := clampIndex(int64(baseY)+int64(i)-1, rectH)
				for j := 0; j < 4; j++ {
					srcX := clampIndex(int64(baseX)+int64(j)-1, rectW)
					w := int64((wx[j] >> 1) * (wy[i] >> 1) >> 6)
					r, g, b := unpackRGB555(srcPixel(uint32(srcX), uint32(srcY)))
					tR += int64(r) * w
					tG += int64(g) * w
					tB += int64(b) * w
				}
			}

			r := clamp5(int32((tR + 0x800000) >> 24))
			g := clamp5(int32((tG + 0x800000) >> 24))
			b := clamp5(int32((tB + 0x800000) >> 24))
			writeDst(dx, dy, packRGB555(r, g, b))

			sx += sxIncr
		}
		sy += syIncr
	}
}

// scaleOneThird averages the 8 outer pixels of each non-overlapping 3x3
// source block into one destination pixel.
func (gr *Graphics) scaleOneThird(rectW, dstW, dstH uint32, srcPixel func(x, y uint32) uint16, writeDst func(x, y uint32, px uint16)) {
	for dy := uint32(0); dy < dstH; dy++ {
		for dx := uint32(0); dx < dstW; dx++ {
			var sumR, sumG, sumB uint32
			baseX, baseY := dx*3, dy*3
			for i := 0; i < 3; i++ {
				for j := 0; j < 3; j++ {
					if i == 1 && j == 1 {
						continue
					}
					r, g, b := unpackRGB555(srcPixel(baseX+uint32(j), baseY+uint32(i)))
					sumR += uint32(r)
					sumG += uint32(g)
					sumB += uint32(b)
				}
			}
			px := uint16(0x8000 | (sumR >> 3) | ((sumG << 2) & 0x3E0) | ((sumB << 7) & 0x7C00))
			writeDst(dx, dy, px)
		}
	}
}

func clampIndex(v int64, limit uint32) int64 {
	if v < 0 {
		return 0
	}
	if v >= int64(limit) {
		return int64(limit) - 1
	}
	return v
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func (gr *Graphics) runYUV() {
	length := uint32(gr.CmdParams[1])<<16 | uint32(gr.CmdParams[0])
	srcAddr := uint32(gr.CmdParams[3])<<16 | uint32(gr.CmdParams[2])
	dstAddr := uint32(gr.CmdParams[5])<<16 | uint32(gr.CmdParams[4])

	quads := length / 4
	for q := uint32(0); q < quads; q++ {
		base := srcAddr + q*4
		y1 := int32(gr.Bus.Read8(base))
		u := int32(gr.Bus.Read8(base + 1))
		y2 := int32(gr.Bus.Read8(base + 2))
		v := int32(gr.Bus.Read8(base + 3))

		up := u - 128
		vp := v - 128
		dr := (vp * 359) >> 8
		dg := -((up*352 + vp*731) >> 10)
		db := (up * 1815) >> 10

		r1 := clamp8(y1 + dr)
		g1 := clamp8(y1 + dg)
		b1 := clamp8(y1 + db)
		r2 := clamp8(y2 + dr)
		g2 := clamp8(y2 + dg)
		b2 := clamp8(y2 + db)

		col1 := uint16(r1>>3) | (uint16(g1>>3) << 5) | (uint16(b1>>3) << 10) | 0x8000
		col2 := uint16(r2>>3) | (uint16(g2>>3) << 5) | (uint16(b2>>3) << 10) | 0x8000

		word := uint32(col1) | uint32(col2)<<16
		gr.Bus.Write32(dstAddr+q*4, word)
	}
}
