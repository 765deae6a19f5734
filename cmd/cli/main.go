package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/choicespecs/user-service-microservice/pkg/config"
	"github.com/choicespecs/user-service-microservice/pkg/models"
	"github.com/choicespecs/user-service-microservice/pkg/rabbitmq"
)

// ANSI
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	White  = "\033[97m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Red    = "\033[31m"
	Cyan   = "\033[36m"
)

type shell struct {
	cfg       *config.Config
	publisher *rabbitmq.Publisher
}

func main() {
	logger := zap.NewNop()
	cfg := config.Load()

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, logger)
	if err != nil {
		fmt.Printf("%s[x] cannot reach RabbitMQ: %v%s\n", Red, err, Reset)
		os.Exit(1)
	}
	defer conn.Close()

	publisher, err := rabbitmq.NewPublisher(conn, logger)
	if err != nil {
		fmt.Printf("%s[x] cannot create publisher: %v%s\n", Red, err, Reset)
		os.Exit(1)
	}
	defer publisher.Close()

	s := &shell{cfg: cfg, publisher: publisher}

	if err := s.startReplyListener(conn); err != nil {
		fmt.Printf("%s[x] cannot start reply listener: %v%s\n", Red, err, Reset)
		os.Exit(1)
	}

	clearScreen()
	printBanner()
	s.loop()
}

func (s *shell) loop() {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("%s>%s ", Cyan, Reset)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		switch parts[0] {
		case "exit", "quit", "q":
			fmt.Printf("\n%sBye%s\n\n", Dim, Reset)
			return

		case "help", "?":
			printHelp()

		case "clear", "cls":
			clearScreen()
			printBanner()

		case "create":
			s.createUser(parts[1:])

		case "update":
			s.updateUser(parts[1:])

		case "delete":
			s.deleteUser(parts[1:])

		case "get":
			s.getUser(parts[1:])

		case "search":
			s.searchUsers(parts[1:])

		default:
			fmt.Printf("  %sunknown command %q, try 'help'%s\n", Red, parts[0], Reset)
		}

		fmt.Println()
	}
}

func (s *shell) createUser(args []string) {
	if len(args) < 2 {
		fmt.Printf("  %sUsage: create <username> <email> [first] [last] [phone]%s\n", Red, Reset)
		return
	}
	user := models.User{Username: args[0], Email: args[1]}
	if len(args) > 2 {
		user.FirstName = args[2]
	}
	if len(args) > 3 {
		user.LastName = args[3]
	}
	if len(args) > 4 {
		user.Phone = args[4]
	}

	s.publish(map[string]any{"action": "create", "user": user}, "")
}

func (s *shell) updateUser(args []string) {
	if len(args) < 2 {
		fmt.Printf("  %sUsage: update <username> field=value ...%s\n", Red, Reset)
		return
	}

	patch := map[string]string{"username": args[0]}
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Printf("  %sexpected field=value, got %q%s\n", Red, kv, Reset)
			return
		}
		patch[key] = value
	}

	s.publish(map[string]any{"action": "update", "user": patch}, "")
}

func (s *shell) deleteUser(args []string) {
	if len(args) != 1 {
		fmt.Printf("  %sUsage: delete <email>%s\n", Red, Reset)
		return
	}
	s.publish(map[string]any{"action": "delete", "email": args[0]}, "")
}

func (s *shell) getUser(args []string) {
	if len(args) != 1 || !strings.Contains(args[0], "=") {
		fmt.Printf("  %sUsage: get username=<v> | email=<v> | phone=<v>%s\n", Red, Reset)
		return
	}
	key, value, _ := strings.Cut(args[0], "=")

	requestID := uuid.New().String()
	s.publish(map[string]any{
		"action": "get",
		"user":   map[string]string{key: value},
	}, requestID)
	fmt.Printf("  %swaiting for reply, request id %s%s\n", Dim, requestID, Reset)
}

func (s *shell) searchUsers(args []string) {
	payload := map[string]any{"action": "search"}
	var free []string

	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			free = append(free, arg)
			continue
		}
		switch key {
		case "page", "size":
			n, err := strconv.Atoi(value)
			if err != nil {
				fmt.Printf("  %s%s must be a number%s\n", Red, key, Reset)
				return
			}
			payload[key] = n
		case "sortBy", "sortDir":
			payload[key] = value
		case "includeDeleted":
			payload[key] = value == "true"
		default:
			// Structured filter field
			filter, _ := payload["user"].(map[string]string)
			if filter == nil {
				filter = map[string]string{}
			}
			filter[key] = value
			payload["user"] = filter
		}
	}
	if len(free) > 0 {
		payload["q"] = strings.Join(free, " ")
	}

	requestID := uuid.New().String()
	s.publish(payload, requestID)
	fmt.Printf("  %swaiting for reply, request id %s%s\n", Dim, requestID, Reset)
}

func (s *shell) publish(payload any, requestID string) {
	body, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("  %s[x] %v%s\n", Red, err, Reset)
		return
	}

	msg := rabbitmq.Message{
		Body:          body,
		ContentType:   "application/json",
		CorrelationID: requestID,
	}
	if err := s.publisher.PublishToQueue(s.cfg.CommandQueue, msg); err != nil {
		fmt.Printf("  %s[x] publish failed: %v%s\n", Red, err, Reset)
		return
	}
	fmt.Printf("  %s[ok] queued%s\n", Green, Reset)
}

// startReplyListener consumes the GET/SEARCH outcome routing keys on an
// exclusive queue and prints correlated replies as they arrive.
func (s *shell) startReplyListener(conn *rabbitmq.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return err
	}
	for _, key := range []string{models.RoutingKeyUserGet, models.RoutingKeyUserSearch} {
		if err := ch.QueueBind(q.Name, key, rabbitmq.ExchangeName, false, nil); err != nil {
			return err
		}
	}

	msgs, err := ch.Consume(q.Name, "cli", true, true, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			printReply(msg)
			fmt.Printf("%s>%s ", Cyan, Reset)
		}
	}()
	return nil
}

func printReply(msg amqp.Delivery) {
	fmt.Println()
	switch msg.RoutingKey {
	case models.RoutingKeyUserGet:
		var event models.GetEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			fmt.Printf("  %s[x] bad reply: %v%s\n", Red, err, Reset)
			return
		}
		printGetReply(event)
	case models.RoutingKeyUserSearch:
		var event models.SearchEvent
		if err := json.Unmarshal(msg.Body, &event); err != nil {
			fmt.Printf("  %s[x] bad reply: %v%s\n", Red, err, Reset)
			return
		}
		printSearchReply(event)
	}
}

func printGetReply(event models.GetEvent) {
	fmt.Printf("  %sreply %s%s\n", Dim, event.RequestID, Reset)
	switch event.Status {
	case models.GetFound:
		u := event.User
		fmt.Printf("  %s[FOUND]%s %s <%s>\n", Green, Reset, u.Username, u.Email)
		if u.FirstName != "" || u.LastName != "" {
			fmt.Printf("  %sname:%s %s %s\n", Dim, Reset, u.FirstName, u.LastName)
		}
		if u.Phone != "" {
			fmt.Printf("  %sphone:%s %s\n", Dim, Reset, u.Phone)
		}
	case models.GetNotFound:
		fmt.Printf("  %s[NOT_FOUND]%s\n", Yellow, Reset)
	default:
		fmt.Printf("  %s[ERROR]%s %s\n", Red, Reset, event.Error)
	}
}

func printSearchReply(event models.SearchEvent) {
	fmt.Printf("  %sreply %s%s\n", Dim, event.RequestID, Reset)
	if event.Status != models.SearchSuccess {
		fmt.Printf("  %s[SEARCH_ERROR]%s %s\n", Red, Reset, event.Error)
		return
	}

	fmt.Printf("  %s[SEARCH_SUCCESS]%s %d of %d match(es), %d page(s)\n",
		Green, Reset, event.ReturnedCount, event.TotalElements, event.TotalPages)
	for _, u := range event.Content {
		fmt.Printf("  - %s%-20s%s %s\n", Bold, u.Username, Reset, u.Email)
	}
}

func printHelp() {
	fmt.Println()
	fmt.Printf("  %s%sCommands%s\n", Bold, White, Reset)
	fmt.Printf("  %screate%s <username> <email> [first] [last] [phone]\n", Green, Reset)
	fmt.Printf("  %supdate%s <username> field=value ...\n", Green, Reset)
	fmt.Printf("  %sdelete%s <email>\n", Green, Reset)
	fmt.Printf("  %sget%s    username=<v> | email=<v> | phone=<v>\n", Green, Reset)
	fmt.Printf("  %ssearch%s [terms] [username=v] [firstName=v] [page=n] [size=n] [sortBy=k] [sortDir=desc]\n", Green, Reset)
	fmt.Println()
	fmt.Printf("  %sclear%s  clear screen\n", Green, Reset)
	fmt.Printf("  %sexit%s   quit shell\n", Green, Reset)
	fmt.Println()
	fmt.Printf("  %sGET and SEARCH replies arrive asynchronously with the request id.%s\n", Dim, Reset)
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %s%s>> User Service Shell%s\n", Bold, Cyan, Reset)
	fmt.Printf("  %sType 'help' for commands%s\n", Dim, Reset)
	fmt.Println()
}

func clearScreen() {
	fmt.Print("\033[H\033[2J")
}
