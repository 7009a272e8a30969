package analysis

import "time"

func (s *Service) SetRetryDelay(d time.Duration) { s.retryDelay = d }
