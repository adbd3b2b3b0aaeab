package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"islander-chat/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}
	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "version":
		fmt.Println("islander-chat cli 0.1.0")
	case "health":
		runHealth()
	case "config":
		runConfig()
	case "server":
		if len(args) > 0 && args[0] == "start" {
			runServerStart()
		} else {
			fmt.Fprintf(os.Stderr, "Usage: ichat server start\n")
			os.Exit(1)
		}
	case "chat":
		runChat(args)
	case "send":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "Usage: ichat send <thread_id> <message...>\n")
			os.Exit(1)
		}
		runSend(args[0], strings.Join(args[1:], " "))
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ichat <command> [args]")
	fmt.Println("  version              - 显示版本")
	fmt.Println("  health               - 查询服务健康与各领域能力状态")
	fmt.Println("  config               - 显示配置概要")
	fmt.Println("  server start         - 启动 API 服务（go run ./cmd/api）")
	fmt.Println("  chat [thread_id]     - 交互式对话（未传 thread_id 时自动生成）")
	fmt.Println("  send <thread_id> <message...> - 发送单轮消息并打印结果")
}

func runHealth() {
	out, err := getHealth(apiBaseURL())
	if err != nil {
		fmt.Fprintf(os.Stderr, "健康检查失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(out))
}

func runConfig() {
	cfg, err := config.LoadOrchestratorConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("api.port=%d\n", cfg.API.Port)
	fmt.Printf("router.dispatch_threshold=%.2f\n", cfg.Router.DispatchThreshold)
	fmt.Printf("router.clarify_threshold=%.2f\n", cfg.Router.ClarifyThreshold)
	fmt.Printf("domains=%d\n", len(cfg.Domains))
}

func runServerStart() {
	c := exec.Command("go", "run", "./cmd/api")
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	c.Dir = "."
	if err := c.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "server start: %v\n", err)
		os.Exit(1)
	}
}

func runChat(args []string) {
	threadID := os.Getenv("ICHAT_THREAD_ID")
	if len(args) > 0 {
		threadID = args[0]
	}
	if threadID == "" {
		threadID = "cli-" + uuid.NewString()
		fmt.Printf("thread: %s\n", threadID)
	}
	userID := os.Getenv("ICHAT_USER_ID")
	if userID == "" {
		userID = "cli"
	}
	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		msg := strings.TrimSpace(line)
		if msg == "" {
			continue
		}
		if msg == "exit" || msg == "quit" {
			break
		}
		reply, err := sendTurn(apiBaseURL(), threadID, userID, msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
			continue
		}
		printReply(reply)
	}
}

func runSend(threadID, message string) {
	userID := os.Getenv("ICHAT_USER_ID")
	if userID == "" {
		userID = "cli"
	}
	reply, err := sendTurn(apiBaseURL(), threadID, userID, message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "发送失败: %v\n", err)
		os.Exit(1)
	}
	printReply(reply)
}

func printReply(r *turnReply) {
	fmt.Println(r.ResponseText)
	if r.Domain != "" {
		fmt.Printf("  [%s · %s · p=%.2f]\n", r.Domain, r.DialogueAct, r.CalibratedConfidence)
	} else {
		fmt.Printf("  [%s]\n", r.DialogueAct)
	}
}
