package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:3210", "agentlab server URL")
	flag.Parse()

	fmt.Println("agentlab CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type 'exit' or 'quit' to leave. Plain text talks to the selected agent.")
	fmt.Println("Commands: /agents, /create <name>, /use <id>, /memories, /reflections,")
	fmt.Println("          /discuss <id,id,...> [url], /discussions, /stop <id>, /tail")
	fmt.Println("---")

	c := &client{server: *server, http: &http.Client{Timeout: 130 * time.Second}}
	c.listAgents()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		if strings.HasPrefix(input, "/") {
			c.command(input)
			continue
		}
		c.talk(input)
	}
}

type client struct {
	server  string
	http    *http.Client
	agentID int64
	cursor  int64
}

func (c *client) command(input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/agents":
		c.listAgents()
	case "/create":
		if len(fields) < 2 {
			printError("usage: /create <name>")
			return
		}
		c.createAgent(strings.Join(fields[1:], " "))
	case "/use":
		if len(fields) < 2 {
			printError("usage: /use <id>")
			return
		}
		id, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			printError("invalid agent id %q", fields[1])
			return
		}
		c.agentID = id
		fmt.Printf("Talking to agent %d\n", id)
	case "/memories":
		c.listMemories()
	case "/reflections":
		c.listReflections()
	case "/discuss":
		if len(fields) < 2 {
			printError("usage: /discuss <id,id,...> [url]")
			return
		}
		url := ""
		if len(fields) > 2 {
			url = fields[2]
		}
		c.startDiscussion(fields[1], url)
	case "/discussions":
		c.listDiscussions()
	case "/stop":
		if len(fields) < 2 {
			printError("usage: /stop <id>")
			return
		}
		c.stopDiscussion(fields[1])
	case "/tail":
		c.tail()
	default:
		printError("unknown command %s", fields[0])
	}
}

type agentRow struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	XPosition        float64 `json:"x_position"`
	YPosition        float64 `json:"y_position"`
	InteractionCount int64   `json:"interaction_count"`
}

func (c *client) listAgents() {
	var agents []agentRow
	if !c.get("/api/agents", &agents) {
		return
	}
	if len(agents) == 0 {
		fmt.Println("No agents yet. Create one with /create <name>.")
		return
	}
	fmt.Println("Agents:")
	for _, a := range agents {
		marker := " "
		if a.ID == c.agentID {
			marker = "*"
		}
		fmt.Printf(" %s %d: %s (interactions: %d)\n", marker, a.ID, a.Name, a.InteractionCount)
	}
}

func (c *client) createAgent(name string) {
	var a agentRow
	if !c.post("/api/agents", map[string]interface{}{"name": name}, &a) {
		return
	}
	c.agentID = a.ID
	fmt.Printf("Created agent %d (%s), now selected.\n", a.ID, a.Name)
}

func (c *client) talk(input string) {
	if c.agentID == 0 {
		printError("no agent selected; use /agents then /use <id>")
		return
	}
	var reply struct {
		Response string `json:"response"`
	}
	path := fmt.Sprintf("/api/agents/%d/talk", c.agentID)
	if !c.post(path, map[string]string{"input": input}, &reply) {
		return
	}
	fmt.Printf("\033[36m[agent %d]\033[0m %s\n", c.agentID, reply.Response)
}

func (c *client) listMemories() {
	if c.agentID == 0 {
		printError("no agent selected")
		return
	}
	var memories []struct {
		Type      string `json:"type"`
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
	if !c.get(fmt.Sprintf("/api/agents/%d/memories", c.agentID), &memories) {
		return
	}
	for _, m := range memories {
		fmt.Printf("  [%s] %s: %s\n", m.Timestamp, m.Type, m.Content)
	}
	if len(memories) == 0 {
		fmt.Println("No memories yet.")
	}
}

func (c *client) listReflections() {
	if c.agentID == 0 {
		printError("no agent selected")
		return
	}
	var reflections []struct {
		Content   string `json:"content"`
		Timestamp string `json:"timestamp"`
	}
	if !c.get(fmt.Sprintf("/api/agents/%d/reflections", c.agentID), &reflections) {
		return
	}
	for _, r := range reflections {
		fmt.Printf("  [%s] %s\n", r.Timestamp, r.Content)
	}
	if len(reflections) == 0 {
		fmt.Println("No reflections yet.")
	}
}

func (c *client) startDiscussion(idList, url string) {
	var ids []int64
	for _, part := range strings.Split(idList, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			printError("invalid agent id %q", part)
			return
		}
		ids = append(ids, id)
	}
	var started struct {
		ID string `json:"id"`
	}
	body := map[string]interface{}{"agent_ids": ids, "topic_url": url}
	if !c.post("/api/discussions", body, &started) {
		return
	}
	fmt.Printf("Discussion %s started. Use /tail to follow it.\n", started.ID)
}

func (c *client) listDiscussions() {
	var resp struct {
		Active []string `json:"active"`
	}
	if !c.get("/api/discussions", &resp) {
		return
	}
	if len(resp.Active) == 0 {
		fmt.Println("No active discussions.")
		return
	}
	fmt.Println("Active discussions:")
	for _, id := range resp.Active {
		fmt.Printf("  %s\n", id)
	}
}

func (c *client) stopDiscussion(id string) {
	req, _ := http.NewRequest("DELETE", c.server+"/api/discussions/"+id, nil)
	resp, err := c.http.Do(req)
	if err != nil {
		printError("request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	var body struct {
		Stopped bool `json:"stopped"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Stopped {
		fmt.Println("Discussion stopped.")
	} else {
		fmt.Println("No discussion with that id.")
	}
}

func (c *client) tail() {
	var resp struct {
		Lines []struct {
			ID        int64  `json:"id"`
			AgentName string `json:"agent_name"`
			Content   string `json:"content"`
			Timestamp string `json:"timestamp"`
		} `json:"lines"`
		Next int64 `json:"next"`
	}
	path := fmt.Sprintf("/api/discussions/tail?after=%d", c.cursor)
	if !c.get(path, &resp) {
		return
	}
	if len(resp.Lines) == 0 {
		fmt.Println("Nothing new.")
		return
	}
	for _, l := range resp.Lines {
		content := l.Content
		if len([]rune(content)) > 200 {
			content = string([]rune(content)[:200]) + "..."
		}
		fmt.Printf("\033[33m%s:\033[0m %s\n", l.AgentName, content)
	}
	c.cursor = resp.Next
}

func (c *client) get(path string, v interface{}) bool {
	resp, err := c.http.Get(c.server + path)
	if err != nil {
		printError("request failed: %v", err)
		return false
	}
	return decode(resp, v)
}

func (c *client) post(path string, body, v interface{}) bool {
	b, _ := json.Marshal(body)
	resp, err := c.http.Post(c.server+path, "application/json", bytes.NewReader(b))
	if err != nil {
		printError("request failed: %v", err)
		return false
	}
	return decode(resp, v)
}

func decode(resp *http.Response, v interface{}) bool {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		printError("server error (%d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		printError("failed to parse response: %v", err)
		return false
	}
	return true
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
