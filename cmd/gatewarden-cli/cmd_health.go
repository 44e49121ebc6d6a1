package main

// ---- Health & Whoami Commands ----

func (c *CLI) healthCommand(args []string) error {
	resp, err := c.get("/health")
	if err != nil {
		return err
	}
	return prettyPrint(resp)
}

func (c *CLI) whoamiCommand(args []string) error {
	resp, err := c.get("/api/whoami")
	if err != nil {
		return err
	}
	return prettyPrint(resp)
}
