package tests

import (
	"fmt"
	"testing"

	"admotion_platform/platform/schema"
	"admotion_platform/platform/services"
)

func createTicket(c client, kind, subject string) (string, error) {
	body := map[string]string{
		"kind": kind, "subject": subject, "description": "something is wrong",
	}
	var res map[string]string
	err := c.Post("/ticket/create").Json(body).Do(&res)
	return res["ticket_id"], err
}

func TestTicketLifecycle(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	driver, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := createTicket(driver, "nonsense", "help"); err == nil {
		t.Fatal("invalid ticket kind should be rejected")
	}

	ticketId, err := createTicket(driver, schema.TicketTechnical, "tablet will not turn on")
	if err != nil {
		t.Fatal(err)
	}

	err = driver.Post(fmt.Sprintf("/ticket/%v/message", ticketId)).
		Json(map[string]string{"message": "it also gets very hot"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	err = admin.Post(fmt.Sprintf("/ticket/%v/message", ticketId)).
		Json(map[string]string{"message": "please try a different charger"}).Do(nil)
	if err != nil {
		t.Fatal(err)
	}

	var details services.TicketDetails
	if err := driver.Get(fmt.Sprintf("/ticket/%v", ticketId)).Do(&details); err != nil {
		t.Fatal(err)
	}
	if len(details.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(details.Messages))
	}

	if err := admin.Post(fmt.Sprintf("/ticket/%v/resolve", ticketId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	if err := driver.Get(fmt.Sprintf("/ticket/%v", ticketId)).Do(&details); err != nil {
		t.Fatal(err)
	}
	if details.Status != schema.TicketResolved || details.ResolvedAt == nil {
		t.Fatalf("expected resolved ticket, got %v", details.Status)
	}
}

func TestTicketAccessControl(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	owner, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}
	other, err := env.newApprovedDriver(admin, "jose", validCpf2)
	if err != nil {
		t.Fatal(err)
	}

	ticketId, err := createTicket(owner, schema.TicketBilling, "missing payout")
	if err != nil {
		t.Fatal(err)
	}

	var details services.TicketDetails
	if err := other.Get(fmt.Sprintf("/ticket/%v", ticketId)).Do(&details); err == nil {
		t.Fatal("other users should not read the ticket")
	}

	err = other.Post(fmt.Sprintf("/ticket/%v/message", ticketId)).
		Json(map[string]string{"message": "me too"}).Do(nil)
	if err == nil {
		t.Fatal("other users should not reply to the ticket")
	}

	if err := admin.Get(fmt.Sprintf("/ticket/%v", ticketId)).Do(&details); err != nil {
		t.Fatal(err)
	}

	err = other.Post(fmt.Sprintf("/ticket/%v/resolve", ticketId)).Do(nil)
	if err == nil {
		t.Fatal("non admins should not resolve tickets")
	}
}

func TestClosedTicketRefusesReplies(t *testing.T) {
	env := setupTestEnv(t)

	admin, err := env.adminClient()
	if err != nil {
		t.Fatal(err)
	}

	driver, err := env.newApprovedDriver(admin, "maria", validCpf1)
	if err != nil {
		t.Fatal(err)
	}

	ticketId, err := createTicket(driver, schema.TicketOther, "question about payouts")
	if err != nil {
		t.Fatal(err)
	}

	if err := admin.Post(fmt.Sprintf("/ticket/%v/close", ticketId)).Do(nil); err != nil {
		t.Fatal(err)
	}

	err = driver.Post(fmt.Sprintf("/ticket/%v/message", ticketId)).
		Json(map[string]string{"message": "still waiting"}).Do(nil)
	if err == nil {
		t.Fatal("closed tickets should not accept replies")
	}
}
