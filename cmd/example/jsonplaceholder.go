package main

import (
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobarasa/roamtech-cypress"
	"github.com/mobarasa/roamtech-cypress/internal/httpclient"
)

const jsonPlaceholderURL = "https://jsonplaceholder.typicode.com"

type post struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

type comment struct {
	PostID int    `json:"postId"`
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

type album struct {
	UserID int    `json:"userId"`
	ID     int    `json:"id"`
	Title  string `json:"title"`
}

type todo struct {
	UserID    int    `json:"userId"`
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type user struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Address  struct {
		Street  string `json:"street"`
		City    string `json:"city"`
		Zipcode string `json:"zipcode"`
		Geo     struct {
			Lat string `json:"lat"`
			Lng string `json:"lng"`
		} `json:"geo"`
	} `json:"address"`
	Company struct {
		Name        string `json:"name"`
		CatchPhrase string `json:"catchPhrase"`
	} `json:"company"`
}

func JSONPlaceholder() roamtech.TestSuite {
	return roamtech.TestSuite{
		Name: "jsonplaceholder",
		Tests: []roamtech.TestCase{
			{ID: "get-all-posts", Func: GetAllPosts},
			{ID: "get-post", Func: GetPost},
			{ID: "get-post-comments", Func: GetPostComments},
			{ID: "filter-posts-by-user", Func: FilterPostsByUser},
			{ID: "get-missing-post", Func: GetMissingPost},
			{ID: "create-post", Func: CreatePost},
			{ID: "update-post", Func: UpdatePost},
			{ID: "patch-post", Func: PatchPost},
			{ID: "delete-post", Func: DeletePost},
			{ID: "get-comments-by-post", Func: GetCommentsByPost},
			{ID: "get-albums-by-user", Func: GetAlbumsByUser},
			{ID: "get-all-todos", Func: GetAllTodos},
			{ID: "filter-completed-todos", Func: FilterCompletedTodos},
			{ID: "create-todo", Func: CreateTodo},
			{ID: "complete-todo", Func: CompleteTodo},
			{ID: "get-all-users", Func: GetAllUsers},
			{ID: "get-user", Func: GetUser},
			{ID: "get-user-todos", Func: GetUserTodos},
			{ID: "content-type-header", Func: ContentTypeHeader},
			{ID: "cors", Func: CORS},
			{ID: "limit-posts", Func: LimitPosts},
			{ID: "paginate-posts", Func: PaginatePosts},
			{ID: "sort-posts", Func: SortPosts},
			{ID: "get-invalid-endpoint", Func: GetInvalidEndpoint},
			{ID: "post-malformed-json", Func: PostMalformedJSON},
		},
	}
}

func request(t roamtech.TB, method, path string, body any) roamtech.Response {
	t.Helper()

	req := roamtech.Request{Method: method, URL: jsonPlaceholderURL + path, Headers: http.Header{}}

	if body != nil {
		data, err := httpclient.EncodeJSON(body)
		require.NoError(t, err)

		req.Body = data
		req.Headers.Set("Content-Type", "application/json; charset=UTF-8")
	}

	res, err := t.HTTP().Request(t.Context(), req)
	require.NoError(t, err, "%s %s", method, path)

	t.Logf("%s %s -> %d (%s)", method, path, res.Status, res.Duration)

	return res
}

func decode(t roamtech.TB, res roamtech.Response, v any) {
	t.Helper()

	require.NoError(t, httpclient.DecodeJSON(res, v))
}

func GetAllPosts(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts", nil)

	require.Equal(t, http.StatusOK, res.Status)
	assert.Less(t, res.Duration, 2*time.Second)

	var posts []post
	decode(t, res, &posts)

	require.Len(t, posts, 100)
	assert.NotEmpty(t, posts[0].Title)
	assert.NotEmpty(t, posts[0].Body)
}

func GetPost(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts/1", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var p post
	decode(t, res, &p)

	assert.Equal(t, 1, p.ID)
	assert.Equal(t, 1, p.UserID)
}

func GetPostComments(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts/1/comments", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var comments []comment
	decode(t, res, &comments)

	require.NotEmpty(t, comments)

	for _, c := range comments {
		assert.Equal(t, 1, c.PostID)
		assert.Contains(t, c.Email, "@")
	}
}

func FilterPostsByUser(t roamtech.TB) {
	userID := 1

	res := request(t, http.MethodGet, fmt.Sprintf("/posts?userId=%d", userID), nil)

	require.Equal(t, http.StatusOK, res.Status)

	var posts []post
	decode(t, res, &posts)

	require.NotEmpty(t, posts)

	for _, p := range posts {
		assert.Equal(t, userID, p.UserID)
	}
}

func GetMissingPost(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts/999999", nil)

	assert.Equal(t, http.StatusNotFound, res.Status)
}

func CreatePost(t roamtech.TB) {
	newPost := post{UserID: 1, Title: "Test Post Title", Body: "This is a test post body content"}

	res := request(t, http.MethodPost, "/posts", newPost)

	require.Equal(t, http.StatusCreated, res.Status)

	var created post
	decode(t, res, &created)

	assert.Equal(t, 101, created.ID)
	assert.Equal(t, newPost.Title, created.Title)
	assert.Equal(t, newPost.Body, created.Body)
}

func UpdatePost(t roamtech.TB) {
	updated := post{ID: 1, UserID: 1, Title: "Updated Title", Body: "Updated body content"}

	res := request(t, http.MethodPut, "/posts/1", updated)

	require.Equal(t, http.StatusOK, res.Status)

	var p post
	decode(t, res, &p)

	assert.Equal(t, updated, p)
}

func PatchPost(t roamtech.TB) {
	res := request(t, http.MethodPatch, "/posts/1", map[string]string{"title": "Patched Title"})

	require.Equal(t, http.StatusOK, res.Status)

	var p post
	decode(t, res, &p)

	assert.Equal(t, "Patched Title", p.Title)
	assert.NotEmpty(t, p.Body, "patching must keep the other fields")
}

func DeletePost(t roamtech.TB) {
	res := request(t, http.MethodDelete, "/posts/1", nil)

	assert.Equal(t, http.StatusOK, res.Status)
}

func GetCommentsByPost(t roamtech.TB) {
	res := request(t, http.MethodGet, "/comments?postId=1", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var comments []comment
	decode(t, res, &comments)

	assert.Len(t, comments, 5)
}

func GetAlbumsByUser(t roamtech.TB) {
	res := request(t, http.MethodGet, "/albums?userId=1", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var albums []album
	decode(t, res, &albums)

	require.NotEmpty(t, albums)

	for _, a := range albums {
		assert.Equal(t, 1, a.UserID)
	}
}

func GetAllTodos(t roamtech.TB) {
	res := request(t, http.MethodGet, "/todos", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var todos []todo
	decode(t, res, &todos)

	require.Len(t, todos, 200)
	assert.NotEmpty(t, todos[0].Title)
}

func FilterCompletedTodos(t roamtech.TB) {
	res := request(t, http.MethodGet, "/todos?completed=true", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var todos []todo
	decode(t, res, &todos)

	require.NotEmpty(t, todos)

	for _, td := range todos {
		assert.True(t, td.Completed, "todo %d", td.ID)
	}
}

func CreateTodo(t roamtech.TB) {
	newTodo := todo{UserID: 1, Title: "Test Todo Item"}

	res := request(t, http.MethodPost, "/todos", newTodo)

	require.Equal(t, http.StatusCreated, res.Status)

	var created todo
	decode(t, res, &created)

	assert.NotZero(t, created.ID)
	assert.Equal(t, newTodo.Title, created.Title)
	assert.False(t, created.Completed)
}

func CompleteTodo(t roamtech.TB) {
	res := request(t, http.MethodPatch, "/todos/1", map[string]bool{"completed": true})

	require.Equal(t, http.StatusOK, res.Status)

	var td todo
	decode(t, res, &td)

	assert.True(t, td.Completed)
}

func GetAllUsers(t roamtech.TB) {
	res := request(t, http.MethodGet, "/users", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var users []user
	decode(t, res, &users)

	require.Len(t, users, 10)
	assert.NotEmpty(t, users[0].Username)
	assert.NotEmpty(t, users[0].Company.Name)
}

func GetUser(t roamtech.TB) {
	res := request(t, http.MethodGet, "/users/1", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var u user
	decode(t, res, &u)

	assert.Equal(t, 1, u.ID)

	_, err := mail.ParseAddress(u.Email)
	assert.NoError(t, err, "email %q", u.Email)

	assert.NotEmpty(t, u.Address.City)
	assert.NotEmpty(t, u.Address.Zipcode)
	assert.NotEmpty(t, u.Address.Geo.Lat)
	assert.NotEmpty(t, u.Company.CatchPhrase)
}

func GetUserTodos(t roamtech.TB) {
	res := request(t, http.MethodGet, "/users/1/todos", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var todos []todo
	decode(t, res, &todos)

	require.NotEmpty(t, todos)

	for _, td := range todos {
		assert.Equal(t, 1, td.UserID)
	}
}

func ContentTypeHeader(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts", nil)

	assert.Contains(t, res.Headers.Get("Content-Type"), "application/json")
}

func CORS(t roamtech.TB) {
	res := request(t, http.MethodOptions, "/posts", nil)

	assert.NotEmpty(t, res.Headers.Get("Access-Control-Allow-Origin"))
}

func LimitPosts(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts?_limit=5", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var posts []post
	decode(t, res, &posts)

	assert.Len(t, posts, 5)
}

func PaginatePosts(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts?_start=10&_limit=5", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var posts []post
	decode(t, res, &posts)

	require.Len(t, posts, 5)
	assert.Greater(t, posts[0].ID, 10)
}

func SortPosts(t roamtech.TB) {
	res := request(t, http.MethodGet, "/posts?_sort=id&_order=desc", nil)

	require.Equal(t, http.StatusOK, res.Status)

	var posts []post
	decode(t, res, &posts)

	for i := 1; i < len(posts); i++ {
		assert.Greater(t, posts[i-1].ID, posts[i].ID)
	}
}

func GetInvalidEndpoint(t roamtech.TB) {
	res := request(t, http.MethodGet, "/invalid-endpoint", nil)

	assert.Equal(t, http.StatusNotFound, res.Status)
}

func PostMalformedJSON(t roamtech.TB) {
	req := roamtech.Request{
		Method:  http.MethodPost,
		URL:     jsonPlaceholderURL + "/posts",
		Body:    []byte("invalid json"),
		Headers: http.Header{"Content-Type": []string{"application/json"}},
	}

	res, err := t.HTTP().Request(t.Context(), req)
	require.NoError(t, err)

	// the api is lenient, a rejection is fine as long as it is not a server error
	assert.Contains(t, []int{http.StatusOK, http.StatusCreated, http.StatusBadRequest}, res.Status)
}
