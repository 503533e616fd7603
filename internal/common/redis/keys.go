package redis

const (
	reportKeyPrefix = "report:"
	lockKeyPrefix   = "lock:site:"
)

// ReportKey is where a finished job's JSON report lives
func (c *Client) ReportKey(jobID string) string {
	return c.prefix + reportKeyPrefix + jobID
}

// SiteLockKey guards against two concurrent jobs for one site
func (c *Client) SiteLockKey(siteID string) string {
	return c.prefix + lockKeyPrefix + siteID
}
