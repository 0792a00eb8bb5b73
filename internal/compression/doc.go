// Package compression owns encode settings and the feedback controller that
// keeps chunk sizes near their target by adjusting a bounded bitrate
// multiplier.
package compression
