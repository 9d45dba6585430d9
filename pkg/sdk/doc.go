// Package finrag is a Go client for the finrag document Q&A service.
//
// A client talks to one namespace: either the one bound to its API key, or, against a
// server without keys, the one named by WithNamespace.
//
//	client, _ := finrag.New("http://localhost:8080", finrag.WithAPIKey(os.Getenv("FINRAG_API_KEY")))
//	res, _ := client.UploadFile(ctx, "annual-report.pdf")
//	fmt.Println(res.PageCount, res.ChunkCount)
//
// # Buffered answers
//
//	ans, _ := client.Chat(ctx, "What was the net income?", nil)
//	fmt.Println(ans.Text, ans.Citations)
//
// # Streaming answers
//
//	stream, _ := client.ChatStream(ctx, "Summarize the risk factors", history)
//	defer stream.Close()
//	for stream.Next() {
//	    ev := stream.Event()
//	    if ev.Kind == finrag.EventToken {
//	        fmt.Print(ev.Token)
//	    }
//	}
//	if err := stream.Err(); err != nil { ... }
package finrag
