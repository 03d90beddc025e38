package bootflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/deploymenttheory/go-bootstd/internal/env"
	"github.com/deploymenttheory/go-bootstd/internal/services"
	"github.com/deploymenttheory/go-bootstd/pkg/app"
)

// Handle processes a bootflow request
func Handle(ctx *app.Context, svc services.BootflowService, req *Request) (*Response, error) {
	startTime := time.Now()

	// 1. Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// 2. Apply the bootmeth override
	if len(req.Bootmeths) > 0 {
		if err := svc.SetEnv(env.VarBootmeths, strings.Join(req.Bootmeths, " ")); err != nil {
			return nil, app.Wrap("cannot set bootmeth order", err)
		}
	}
	logRequest(ctx, req)

	opts := req.Options()
	response := &Response{}

	// 3. Boot or scan
	if req.Boot {
		ctx.Progress("Booting...", 10)
		bflow, err := svc.Boot(ctx, opts)
		response.ScanTime = time.Since(startTime)
		if err != nil {
			return response, app.NewError(app.ErrCodeBootFailed, "boot failed", err)
		}
		summary := bflow.Summarize()
		response.Booted = &summary
		ctx.Progress("Complete", 100)
		return response, nil
	}

	ctx.Progress("Scanning...", 10)
	flows, err := svc.Scan(ctx, opts)
	response.ScanTime = time.Since(startTime)
	if err != nil {
		return nil, app.Wrap("scan failed", err)
	}
	response.Result = services.NewScanResult(flows)

	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("Scan completed: %d bootflows in %v", response.Result.Found, response.ScanTime))
	return response, nil
}

// logRequest logs the scan settings for verbose output
func logRequest(ctx *app.Context, req *Request) {
	if !ctx.Verbose {
		return
	}
	if req.Label != "" {
		ctx.Log("Label: " + req.Label)
	}
	if len(req.Bootmeths) > 0 {
		ctx.Log("Bootmeths: " + strings.Join(req.Bootmeths, ", "))
	}
	if req.NoHunt {
		ctx.Log("Hunting disabled")
	}
}
