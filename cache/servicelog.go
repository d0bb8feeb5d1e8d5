package cache

import "strconv"

// Service log hash fields. The hash at ServiceLogKey(chain, node) carries
// the rolling counters the cherry picker ranks nodes by. Writers use
// HIncrBy so concurrent updates across the fleet stay atomic; readers
// accept a point-in-time snapshot.
const (
	FieldSuccessCount = "success_count"
	FieldFailureCount = "failure_count"
	FieldElapsedSumMS = "elapsed_sum_ms"
	FieldElapsedCount = "elapsed_count"
)

// ServiceLog is the decoded per-(chain, node) rolling performance record.
type ServiceLog struct {
	SuccessCount int64
	FailureCount int64
	ElapsedSumMS int64
	ElapsedCount int64
}

// Total returns the number of observed attempts.
func (s ServiceLog) Total() int64 {
	return s.SuccessCount + s.FailureCount
}

// SuccessRate returns the fraction of successful attempts, or 0 with no
// observations.
func (s ServiceLog) SuccessRate() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(total)
}

// AvgLatencyMS returns the mean observed latency in milliseconds, with
// ok=false when no latency samples exist.
func (s ServiceLog) AvgLatencyMS() (float64, bool) {
	if s.ElapsedCount == 0 {
		return 0, false
	}
	return float64(s.ElapsedSumMS) / float64(s.ElapsedCount), true
}

// ParseServiceLog decodes a service log hash snapshot. Unparseable fields
// read as zero.
func ParseServiceLog(fields map[string]string) ServiceLog {
	return ServiceLog{
		SuccessCount: parseInt(fields[FieldSuccessCount]),
		FailureCount: parseInt(fields[FieldFailureCount]),
		ElapsedSumMS: parseInt(fields[FieldElapsedSumMS]),
		ElapsedCount: parseInt(fields[FieldElapsedCount]),
	}
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
