package toolsurface

import "time"

func secondsToDuration(secs int) time.Duration {
	return time.Duration(secs) * time.Second
}
