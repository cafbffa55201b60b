// Package workflow runs queued jobs through their stage plans.
//
// The Manager polls the queue with one loop per lane (download, subtitle,
// export), claims the oldest queued job, and executes its stages in order.
// Each stage runs under a per-stage timeout with a heartbeat loop and a
// request id for log correlation. Transient failures retry with
// exponential backoff; everything else fails the job with a classified
// error message until an explicit retry. Stage functions are registered by
// name, which keeps this package free of the media packages it drives.
package workflow
