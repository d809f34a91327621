package service

import "fmt"

func notificationEmailTemplate(title, message, goalURL, appName string) (string, string) {
	subject := fmt.Sprintf("%s - %s", title, appName)
	body := fmt.Sprintf(`%s

View your goal: %s

Best,
The %s Team`, message, goalURL, appName)

	return subject, body
}
