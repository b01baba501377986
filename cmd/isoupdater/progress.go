package main

import (
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/usb-isoupdater/isoupdater/internal/distro"
	"github.com/usb-isoupdater/isoupdater/internal/fetch"
)

// progressBars renders one bar per download attempt.
type progressBars struct {
	out io.Writer
}

func (p *progressBars) forRelease(r *distro.Resolved) fetch.ProgressFunc {
	var bar *progressbar.ProgressBar
	var last int64
	return func(done, total int64) {
		// a retried download starts again at zero
		if bar == nil || done < last {
			bar = progressbar.NewOptions64(total,
				progressbar.OptionSetWriter(p.out),
				progressbar.OptionSetDescription(r.Filename),
				progressbar.OptionShowBytes(true),
				progressbar.OptionShowCount(),
				progressbar.OptionSetWidth(40),
				progressbar.OptionThrottle(100*time.Millisecond),
				progressbar.OptionOnCompletion(func() {
					_, _ = io.WriteString(p.out, "\n")
				}),
			)
			last = 0
		}
		_ = bar.Add64(done - last)
		last = done
		if total > 0 && done >= total {
			_ = bar.Finish()
		}
	}
}
