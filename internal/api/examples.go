package api

import (
	"net/http"

	"github.com/askql/askql/internal/auth"
)

type example struct {
	Question string `json:"question"`
	SQL      string `json:"sql"`
}

// Canned prompts for the rental schema, used by clients as starting points.
var cannedExamples = []example{
	{
		Question: "How many films are in the database?",
		SQL:      "SELECT COUNT(*) FROM film;",
	},
	{
		Question: "What are the top 5 most rented films?",
		SQL: "SELECT f.title, COUNT(r.rental_id) AS rental_count\n" +
			"FROM film f\n" +
			"JOIN inventory i ON f.film_id = i.film_id\n" +
			"JOIN rental r ON i.inventory_id = r.inventory_id\n" +
			"GROUP BY f.title\n" +
			"ORDER BY rental_count DESC\n" +
			"LIMIT 5;",
	},
	{
		Question: "Which customers have spent the most money?",
		SQL: "SELECT c.first_name, c.last_name, SUM(p.amount) AS total_spent\n" +
			"FROM customer c\n" +
			"JOIN payment p ON c.customer_id = p.customer_id\n" +
			"GROUP BY c.customer_id, c.first_name, c.last_name\n" +
			"ORDER BY total_spent DESC\n" +
			"LIMIT 10;",
	},
	{
		Question: "How many films are there in each category?",
		SQL: "SELECT cat.name, COUNT(fc.film_id) AS film_count\n" +
			"FROM category cat\n" +
			"JOIN film_category fc ON cat.category_id = fc.category_id\n" +
			"GROUP BY cat.name\n" +
			"ORDER BY film_count DESC;",
	},
	{
		Question: "Which actors appear in the most films?",
		SQL: "SELECT a.first_name, a.last_name, COUNT(fa.film_id) AS film_count\n" +
			"FROM actor a\n" +
			"JOIN film_actor fa ON a.actor_id = fa.actor_id\n" +
			"GROUP BY a.actor_id, a.first_name, a.last_name\n" +
			"ORDER BY film_count DESC\n" +
			"LIMIT 10;",
	},
	{
		Question: "What is the average rental duration per category?",
		SQL: "SELECT cat.name, AVG(f.rental_duration) AS avg_rental_duration\n" +
			"FROM category cat\n" +
			"JOIN film_category fc ON cat.category_id = fc.category_id\n" +
			"JOIN film f ON fc.film_id = f.film_id\n" +
			"GROUP BY cat.name\n" +
			"ORDER BY avg_rental_duration DESC;",
	},
}

func handleExamples(_ Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsk); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"examples": cannedExamples,
		"count":    len(cannedExamples),
	})
}
