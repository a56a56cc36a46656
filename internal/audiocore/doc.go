// Package audiocore provides the capture side of voicerec: the PCM format and frame
// types, the AudioSource interface implemented by the capture backends, the Framer that
// re-chunks driver callbacks into fixed-size frames, and the FrameQueue that hands frames
// from the real-time callback to the consumer loop.
//
// # Architecture Overview
//
//	AudioSource callback -> Framer -> FrameQueue.Push  (capture goroutine)
//	FrameQueue.Pop -> segmentation policy -> writer    (consumer goroutine)
//
// # Concurrency and Thread Safety
//
// The capture callback side performs no allocation beyond the frame copy and never
// blocks:
//
//   - Framer: owned by exactly one capture goroutine, not safe for concurrent use
//   - FrameQueue: Push is safe from any goroutine, Pop and TryPop are meant for a
//     single consumer
//   - AudioSource: Start and Stop may be called from different goroutines
//
// Frames crossing the queue are ownership transfers. A producer must not touch a frame
// after pushing it and the consumer must not expect the producer to reuse it.
package audiocore
