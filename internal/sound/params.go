package sound

import (
	"github.com/glebovdev/soundq/internal/device"
)

// SetVolume sets the sound's volume; the device gain is this times the
// manager volume.
func (s *Sound) SetVolume(volume float64) {
	s.volume = volume
	if s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetFloat(s.voice, device.ParamGain, volume*s.mgr.Volume()), "set gain")
}

func (s *Sound) Volume() float64 { return s.volume }

// SetBalance is not supported by the device and does nothing.
func (s *Sound) SetBalance(balance float64) {
	s.log.Warn().Float64("balance", balance).Msg("SetBalance not implemented")
}

// Balance is not supported by the device and always returns 0.
func (s *Sound) Balance() float64 {
	s.log.Warn().Msg("Balance not implemented")
	return 0
}

// Set3DAttributes sets position and velocity in world coordinates (Z up,
// Y into the screen). The device uses Y up and Z towards the viewer, so
// (x, y, z) is stored as (x, z, -y).
func (s *Sound) Set3DAttributes(px, py, pz, vx, vy, vz float64) {
	s.location = device.Vec3{X: px, Y: pz, Z: -py}
	s.velocity = device.Vec3{X: vx, Y: vz, Z: -vy}

	if s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetVector(s.voice, device.ParamPosition, s.location), "set position")
	s.errcheck(ctx.SetVector(s.voice, device.ParamVelocity, s.velocity), "set velocity")
}

// Attributes3D returns position and velocity in world coordinates.
func (s *Sound) Attributes3D() (px, py, pz, vx, vy, vz float64) {
	return s.location.X, -s.location.Z, s.location.Y,
		s.velocity.X, -s.velocity.Z, s.velocity.Y
}

// Set3DMinDistance sets the distance at which the sound starts to fall off.
func (s *Sound) Set3DMinDistance(dist float64) {
	s.minDist = dist
	if s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetFloat(s.voice, device.ParamReferenceDistance, dist*s.mgr.DistanceFactor()), "set reference distance")
}

func (s *Sound) MinDistance3D() float64 { return s.minDist }

// Set3DMaxDistance sets the distance past which the sound stops falling off.
func (s *Sound) Set3DMaxDistance(dist float64) {
	s.maxDist = dist
	if s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetFloat(s.voice, device.ParamMaxDistance, dist*s.mgr.DistanceFactor()), "set max distance")
}

func (s *Sound) MaxDistance3D() float64 { return s.maxDist }

// Set3DDropOffFactor scales how quickly the sound fades with distance.
func (s *Sound) Set3DDropOffFactor(factor float64) {
	s.dropOff = factor
	if s.voice == device.NoVoice {
		return
	}
	ctx := s.mgr.MakeCurrent()
	s.errcheck(ctx.SetFloat(s.voice, device.ParamRolloff, factor*s.mgr.DropOffFactor()), "set rolloff")
}

func (s *Sound) DropOffFactor3D() float64 { return s.dropOff }
