package ucode

import "nitro-dsp-hle/internal/debug"

// pipeWord reads word w (0..4) of the 5-word descriptor for pipe index.
func (s *Substrate) pipeWord(index, w int) uint16 {
	return s.Data.ReadWord(PipeMonitorAddr + uint32(index*5+w))
}

func (s *Substrate) setPipeWord(index, w int, val uint16) {
	s.Data.WriteWord(PipeMonitorAddr+uint32(index*5+w), val)
}

// GetPipeLength returns the number of words currently queued in pipe
// index, per the rd/wr pointer-and-phase encoding in words 2 and 3.
func (s *Substrate) GetPipeLength(index int) uint16 {
	p1 := s.pipeWord(index, 1)
	p2 := s.pipeWord(index, 2)
	p3 := s.pipeWord(index, 3)
	rd := p2 & 0x7FFF
	wr := p3 & 0x7FFF

	var ret uint16
	if (p2^p3)&0x8000 != 0 {
		ret = wr + p1 - rd
	} else {
		ret = wr - rd
	}
	if ret%2 != 0 {
		s.logf(debug.LogLevelWarning, "pipe %d length %d is odd", index, ret)
	}
	return ret >> 1
}

// ReadPipe dequeues up to n words from pipe index, returning however many
// were actually available, then posts the pipe's completion reply and
// raises the shared semaphore bit.
func (s *Substrate) ReadPipe(index, n int) []uint16 {
	pipeLenWords := s.pipeWord(index, 1) >> 1
	bufAddr := uint32(s.pipeWord(index, 0))
	p2 := s.pipeWord(index, 2)
	p3 := s.pipeWord(index, 3)
	rdWord := (p2 & 0x7FFF) >> 1
	rdPhase := p2 >> 15
	wrWord := (p3 & 0x7FFF) >> 1

	out := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		if rdWord == wrWord {
			break
		}
		out = append(out, s.Data.ReadWord(bufAddr+uint32(rdWord)))
		rdWord++
		if rdWord >= pipeLenWords {
			rdWord = 0
			rdPhase ^= 1
		}
	}

	s.setPipeWord(index, 2, (rdWord<<1)&0x7FFF|(rdPhase<<15))
	s.SendReply(2, s.pipeWord(index, 4))
	s.setSemaphoreOut(0x8000)
	return out
}

// WritePipe enqueues as many of data's words as fit in pipe index,
// discarding the remainder if the ring fills, then posts the pipe's
// completion reply and raises the shared semaphore bit.
func (s *Substrate) WritePipe(index int, data []uint16) int {
	pipeLenWords := s.pipeWord(index, 1) >> 1
	bufAddr := uint32(s.pipeWord(index, 0))
	p2 := s.pipeWord(index, 2)
	p3 := s.pipeWord(index, 3)
	rdWord := (p2 & 0x7FFF) >> 1
	wrWord := (p3 & 0x7FFF) >> 1
	wrPhase := p3 >> 15

	wrote := 0
	for i := 0; i < len(data); i++ {
		s.Data.WriteWord(bufAddr+uint32(wrWord), data[i])
		wrWord++
		if wrWord >= pipeLenWords {
			wrWord = 0
			wrPhase ^= 1
		}
		wrote++
		if wrWord == rdWord {
			s.logf(debug.LogLevelWarning, "pipe %d full, discarding %d remaining words", index, len(data)-wrote)
			break
		}
	}

	s.setPipeWord(index, 3, (wrWord<<1)&0x7FFF|(wrPhase<<15))
	s.SendReply(2, s.pipeWord(index, 4))
	s.setSemaphoreOut(0x8000)
	return wrote
}
